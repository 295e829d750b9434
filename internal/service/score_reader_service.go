package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// ErrScoreRead indicates a transient backend failure while reading a
// problem score. Callers may retry.
var ErrScoreRead = errors.New("score read failed")

// ScoreReader resolves the ProblemScore of one leaf block for a learner.
// Non-scorable blocks resolve to nil. Problem types that report their own
// score through the submissions service win over the course-scoped store.
type ScoreReader interface {
	Read(ctx context.Context, userID uint, node structure.BlockNode, skipUnattempted bool) (*ProblemScore, error)
}

type scoreReader struct {
	scores      repository.ScoreRepository
	submissions SubmissionsScoreProvider
	logger      zerolog.Logger
}

// NewScoreReader builds the reader. The submissions provider may be nil
// when no external submissions service is configured.
func NewScoreReader(scores repository.ScoreRepository, submissions SubmissionsScoreProvider, logger zerolog.Logger) ScoreReader {
	return &scoreReader{
		scores:      scores,
		submissions: submissions,
		logger:      logger.With().Str("component", "score_reader").Logger(),
	}
}

func (r *scoreReader) Read(ctx context.Context, userID uint, node structure.BlockNode, skipUnattempted bool) (*ProblemScore, error) {
	if !node.Scorable() {
		return nil, nil
	}

	if r.submissions != nil {
		submitted, err := r.submissions.GetSubmissionsScore(ctx, userID, node.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: submissions service: %v", ErrScoreRead, err)
		}
		if submitted != nil {
			return buildProblemScore(node, submitted.Earned, submitted.Possible, submitted.FirstAttemptedAt), nil
		}
	}

	row, err := r.scores.Get(ctx, userID, node.ID.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if skipUnattempted {
				return nil, nil
			}
			// Unattempted: possible comes from the authored block so the
			// "all" total still reflects the full denominator.
			return buildProblemScore(node, 0, node.MaxScore, nil), nil
		}
		return nil, fmt.Errorf("%w: %v", ErrScoreRead, err)
	}

	return buildProblemScore(node, row.RawEarned, row.RawPossible, row.FirstAttemptedAt), nil
}

// buildProblemScore clamps the raw pair and applies the authored problem
// weight: with a defined weight and positive possible, earned scales to
// earned/possible * weight; otherwise weighted equals raw.
func buildProblemScore(node structure.BlockNode, rawEarned, rawPossible float64, firstAttempted *time.Time) *ProblemScore {
	if rawPossible < 0 {
		rawPossible = 0
	}
	if rawEarned < 0 {
		rawEarned = 0
	}
	if rawEarned > rawPossible {
		rawEarned = rawPossible
	}

	weightedEarned := rawEarned
	weightedPossible := rawPossible
	if node.Weight != nil && rawPossible > 0 {
		weightedEarned = rawEarned / rawPossible * *node.Weight
		weightedPossible = *node.Weight
	}

	return &ProblemScore{
		UsageKey:         node.ID,
		RawEarned:        rawEarned,
		RawPossible:      rawPossible,
		WeightedEarned:   weightedEarned,
		WeightedPossible: weightedPossible,
		Weight:           node.Weight,
		Graded:           weightedPossible > 0,
		FirstAttemptedAt: firstAttempted,
	}
}
