package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/observability"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// ErrBlockNotScorable indicates a score write against a block whose
// category carries no score.
var ErrBlockNotScorable = errors.New("block is not scorable")

// ErrBlockNotFound indicates the addressed block is not part of the course.
var ErrBlockNotFound = errors.New("block not found in course")

// ScoreService writes raw problem scores and notifies the configured
// listeners after each committed write.
type ScoreService interface {
	SetScore(ctx context.Context, userID uint, courseID, usageKey string, earned, possible float64) (models.StudentScore, error)
	DeleteScore(ctx context.Context, userID uint, courseID, usageKey string) error
}

type scoreService struct {
	scores   repository.ScoreRepository
	blocks   repository.BlockRepository
	notifier ScoreNotifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewScoreService constructs the score writer. The notifier may be nil
// when nothing reacts to score changes.
func NewScoreService(scores repository.ScoreRepository, blocks repository.BlockRepository, notifier ScoreNotifier, logger zerolog.Logger) ScoreService {
	return &scoreService{
		scores:   scores,
		blocks:   blocks,
		notifier: notifier,
		logger:   logger.With().Str("component", "score_service").Logger(),
		now:      time.Now,
	}
}

func (s *scoreService) SetScore(ctx context.Context, userID uint, courseID, usageKey string, earned, possible float64) (models.StudentScore, error) {
	block, err := s.blocks.GetByUsageKey(ctx, courseID, usageKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.StudentScore{}, fmt.Errorf("%w: %s", ErrBlockNotFound, usageKey)
		}
		return models.StudentScore{}, err
	}
	if !structure.ScorableCategories[block.Category] {
		return models.StudentScore{}, fmt.Errorf("%w: %s is a %s", ErrBlockNotScorable, usageKey, block.Category)
	}

	if possible < 0 {
		possible = 0
	}
	if earned < 0 {
		earned = 0
	}
	if earned > possible {
		earned = possible
	}

	now := s.now().UTC()
	record := models.StudentScore{
		UserID:           userID,
		CourseID:         courseID,
		UsageKey:         usageKey,
		RawEarned:        earned,
		RawPossible:      possible,
		FirstAttemptedAt: &now,
	}
	if err := s.scores.Upsert(ctx, &record); err != nil {
		return models.StudentScore{}, err
	}

	observability.GradeWrites().WithLabelValues("raw_score").Inc()
	s.notify(ctx, userID, courseID, usageKey, now, false)

	stored, err := s.scores.Get(ctx, userID, usageKey)
	if err != nil {
		// The write committed; reading it back is best effort.
		s.logger.Warn().Err(err).Str("usage_key", usageKey).Msg("failed to re-read stored score")
		return record, nil
	}

	return stored, nil
}

func (s *scoreService) DeleteScore(ctx context.Context, userID uint, courseID, usageKey string) error {
	if err := s.scores.Delete(ctx, userID, usageKey); err != nil {
		return err
	}

	s.notify(ctx, userID, courseID, usageKey, s.now().UTC(), true)
	return nil
}

func (s *scoreService) notify(ctx context.Context, userID uint, courseID, usageKey string, at time.Time, deleted bool) {
	if s.notifier == nil {
		return
	}
	s.notifier.OnScoreWritten(ctx, ScoreWrittenEvent{
		UserID:    userID,
		CourseID:  structure.CourseID(courseID),
		UsageKey:  structure.BlockID(usageKey),
		WrittenAt: at,
		Deleted:   deleted,
	})
}
