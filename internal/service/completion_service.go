package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// ErrInvalidCompletion indicates a completion fraction outside [0, 1].
var ErrInvalidCompletion = errors.New("completion must be between 0 and 1")

// CompletionService records per-block completion and aggregates it per
// subsection for the gating thresholds.
type CompletionService interface {
	CompletionProvider
	// SetCompletion records how far the learner got through one block.
	SetCompletion(ctx context.Context, userID uint, courseID structure.CourseID, usageKey structure.BlockID, completion float64) (models.BlockCompletion, error)
}

type completionService struct {
	completions repository.CompletionRepository
	views       StructureProvider
	logger      zerolog.Logger
}

// NewCompletionService builds the completion surface.
func NewCompletionService(completions repository.CompletionRepository, views StructureProvider, logger zerolog.Logger) CompletionService {
	return &completionService{
		completions: completions,
		views:       views,
		logger:      logger.With().Str("component", "completion_service").Logger(),
	}
}

func (s *completionService) SetCompletion(ctx context.Context, userID uint, courseID structure.CourseID, usageKey structure.BlockID, completion float64) (models.BlockCompletion, error) {
	if completion < 0 || completion > 1 {
		return models.BlockCompletion{}, fmt.Errorf("%w: got %v", ErrInvalidCompletion, completion)
	}

	view, err := s.views.GetCourseView(ctx, courseID, true)
	if err != nil {
		return models.BlockCompletion{}, err
	}
	if !view.Has(usageKey) {
		return models.BlockCompletion{}, fmt.Errorf("%w: %s", ErrBlockNotFound, usageKey)
	}

	subsection, ok := view.SubsectionOf(usageKey)
	if !ok {
		return models.BlockCompletion{}, fmt.Errorf("%w: %s sits outside every subsection", ErrBlockNotFound, usageKey)
	}

	row := models.BlockCompletion{
		UserID:        userID,
		CourseID:      courseID.String(),
		UsageKey:      usageKey.String(),
		SubsectionKey: subsection.String(),
		Completion:    completion,
	}
	if err := s.completions.Upsert(ctx, &row); err != nil {
		return models.BlockCompletion{}, err
	}

	return row, nil
}

// SubsectionCompletionPercentage averages the recorded completions over
// every completable block of the subsection. Blocks without a row count
// as zero, so the percentage only reaches 100 when everything is done.
func (s *completionService) SubsectionCompletionPercentage(ctx context.Context, userID uint, usageKey structure.BlockID) (float64, error) {
	rows, err := s.completions.ListBySubsection(ctx, userID, usageKey.String())
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var sum float64
	for _, row := range rows {
		sum += row.Completion
	}

	total := len(rows)
	view, err := s.views.GetCourseView(ctx, structure.CourseID(rows[0].CourseID), true)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("usage_key", usageKey.String()).
			Msg("falling back to recorded rows for completion denominator")
	} else if leaves := countLeaves(view, usageKey); leaves > total {
		total = leaves
	}

	percentage := 100 * sum / float64(total)
	if percentage > 100 {
		percentage = 100
	}
	return percentage, nil
}

func countLeaves(view *structure.View, subsection structure.BlockID) int {
	count := 0
	for _, id := range view.Descendants(subsection) {
		if len(view.ChildrenOf(id)) == 0 {
			count++
		}
	}
	return count
}
