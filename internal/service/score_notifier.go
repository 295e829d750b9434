package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// ScoreWrittenEvent describes one raw score write. Deleted marks the
// admin state-reset path.
type ScoreWrittenEvent struct {
	UserID    uint               `json:"user_id"`
	CourseID  structure.CourseID `json:"course_id"`
	UsageKey  structure.BlockID  `json:"usage_key"`
	WrittenAt time.Time          `json:"written_at"`
	Deleted   bool               `json:"deleted,omitempty"`
}

// ScoreListener reacts to score writes. Listener failures are logged by
// the dispatcher and never propagate back to the score writer.
type ScoreListener interface {
	OnScoreWritten(ctx context.Context, event ScoreWrittenEvent) error
}

// ScoreNotifier is the write-side interface injected into the score
// writer.
type ScoreNotifier interface {
	OnScoreWritten(ctx context.Context, event ScoreWrittenEvent)
}

// ScoreDispatcher fans score-written events out to registered listeners
// in registration order. It replaces cross-cutting signal dispatch with
// an explicit, process-scoped container.
type ScoreDispatcher struct {
	mu        sync.RWMutex
	listeners []ScoreListener
	logger    zerolog.Logger
}

// NewScoreDispatcher builds an empty dispatcher.
func NewScoreDispatcher(logger zerolog.Logger) *ScoreDispatcher {
	return &ScoreDispatcher{
		logger: logger.With().Str("component", "score_dispatcher").Logger(),
	}
}

// Register appends a listener. Intended for wiring at startup.
func (d *ScoreDispatcher) Register(listener ScoreListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, listener)
}

// OnScoreWritten delivers the event to every listener. A failing
// listener does not stop delivery to the rest.
func (d *ScoreDispatcher) OnScoreWritten(ctx context.Context, event ScoreWrittenEvent) {
	d.mu.RLock()
	listeners := make([]ScoreListener, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.RUnlock()

	for _, listener := range listeners {
		if err := listener.OnScoreWritten(ctx, event); err != nil {
			d.logger.Warn().Err(err).
				Uint("user_id", event.UserID).
				Str("usage_key", event.UsageKey.String()).
				Msg("score listener failed")
		}
	}
}
