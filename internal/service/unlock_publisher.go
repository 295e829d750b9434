package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/observability"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

const unlockBufferSize = 16

// UnlockEvent announces that a gate opened for one learner.
type UnlockEvent struct {
	UserID          uint               `json:"user_id"`
	CourseID        structure.CourseID `json:"course_id"`
	GatedKey        structure.BlockID  `json:"gated_key"`
	PrerequisiteKey structure.BlockID  `json:"prerequisite_key"`
	UnlockedAt      time.Time          `json:"unlocked_at"`
}

// UnlockNotifier is the write-side interface the gating evaluator uses.
type UnlockNotifier interface {
	NotifyUnlock(ctx context.Context, event UnlockEvent)
}

// UnlockPublisher fans unlock events out to connected learners via SSE
// and across nodes via redis pub/sub and NATS.
type UnlockPublisher interface {
	UnlockNotifier
	// Subscribe registers a live event channel for one learner. The
	// returned cleanup must be called when the client disconnects.
	Subscribe(userID uint) (<-chan UnlockEvent, func())
	// Start launches the cross-node consumers. They stop when the
	// context is cancelled.
	Start(ctx context.Context)
}

type unlockPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	broker       *unlockBroker
	nodeID       string
}

type unlockEnvelope struct {
	Source string      `json:"source"`
	Event  UnlockEvent `json:"event"`
	SentAt time.Time   `json:"sent_at"`
}

type unlockBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan UnlockEvent]struct{}
}

// NewUnlockPublisher constructs the publisher. Redis and NATS are both
// optional; with neither, events only reach subscribers on this node.
func NewUnlockPublisher(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) UnlockPublisher {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":unlocks"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".unlocks"
	}

	return &unlockPublisher{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "unlock_publisher").Logger(),
		broker: &unlockBroker{
			subscribers: make(map[uint]map[chan UnlockEvent]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (p *unlockPublisher) Start(ctx context.Context) {
	if p.redis != nil && p.redisChannel != "" {
		go p.consumeRedis(ctx)
	}
	if p.nats != nil && p.natsSubject != "" {
		go p.consumeNATS(ctx)
	}
}

func (p *unlockPublisher) NotifyUnlock(ctx context.Context, event UnlockEvent) {
	p.broker.broadcast(event.UserID, event)
	observability.UnlockEvents().WithLabelValues("local").Inc()

	if err := p.publish(ctx, event); err != nil {
		p.logger.Warn().Err(err).
			Uint("user_id", event.UserID).
			Str("gated_key", event.GatedKey.String()).
			Msg("failed to publish unlock event")
	}
}

func (p *unlockPublisher) Subscribe(userID uint) (<-chan UnlockEvent, func()) {
	channel := make(chan UnlockEvent, unlockBufferSize)

	p.broker.subscribe(userID, channel)

	cleanup := func() {
		p.broker.unsubscribe(userID, channel)
	}

	return channel, cleanup
}

func (p *unlockPublisher) publish(ctx context.Context, event UnlockEvent) error {
	envelope := unlockEnvelope{
		Source: p.nodeID,
		Event:  event,
		SentAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			return err
		}
		observability.UnlockEvents().WithLabelValues("redis").Inc()
	}

	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			return err
		}
		observability.UnlockEvents().WithLabelValues("nats").Inc()
	}

	return nil
}

func (p *unlockPublisher) consumeRedis(ctx context.Context) {
	pubsub := p.redis.Subscribe(ctx, p.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Error().Err(err).Msg("unlock redis subscription closed")
			return
		}
		p.handleEnvelope([]byte(msg.Payload))
	}
}

func (p *unlockPublisher) consumeNATS(ctx context.Context) {
	sub, err := p.nats.QueueSubscribe(p.natsSubject, "coursegate-unlocks", func(msg *nats.Msg) {
		p.handleEnvelope(msg.Data)
	})
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to subscribe to nats unlock subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			p.logger.Warn().Err(err).Msg("failed to drain unlock nats subscription")
		}
	}()
}

func (p *unlockPublisher) handleEnvelope(payload []byte) {
	var envelope unlockEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		p.logger.Warn().Err(err).Msg("invalid unlock event payload")
		return
	}

	if envelope.Source == p.nodeID {
		return
	}

	observability.UnlockEvents().WithLabelValues("remote").Inc()
	p.broker.broadcast(envelope.Event.UserID, envelope.Event)
}

func (b *unlockBroker) subscribe(userID uint, ch chan UnlockEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[userID]; !exists {
		b.subscribers[userID] = make(map[chan UnlockEvent]struct{})
	}
	b.subscribers[userID][ch] = struct{}{}
}

func (b *unlockBroker) unsubscribe(userID uint, ch chan UnlockEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[userID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, userID)
		}
	}
}

func (b *unlockBroker) broadcast(userID uint, event UnlockEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers := b.subscribers[userID]
	for ch := range subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
