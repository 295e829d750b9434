package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/observability"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// SubsectionUpdateOptions tunes the persistence behaviour of an update.
type SubsectionUpdateOptions struct {
	// OnlyIfHigher keeps the stored grade when the recomputed graded
	// earned value does not strictly exceed it.
	OnlyIfHigher bool
	// ScoreDeleted marks the admin state-reset path: the recomputed
	// grade is written (or the stale row removed) even when the learner
	// has no remaining attempts.
	ScoreDeleted bool
}

// SubsectionGradeService computes and persists per-(user, subsection)
// grade aggregates.
type SubsectionGradeService interface {
	// Compute rolls the subsection up from raw scores without touching
	// persistence (beyond reading overrides).
	Compute(ctx context.Context, userID uint, view *structure.View, subsection structure.BlockID) (SubsectionGradeValue, error)
	// Read returns the grade, consulting the persisted row unless the
	// course disables persistent grades.
	Read(ctx context.Context, userID uint, view *structure.View, subsection structure.BlockID, cfg models.CourseConfig) (SubsectionGradeValue, error)
	// Update recomputes and persists per the write-only-if-engaged rule.
	Update(ctx context.Context, userID uint, view *structure.View, subsection structure.BlockID, cfg models.CourseConfig, opts SubsectionUpdateOptions) (SubsectionGradeValue, error)
	// ApplyOverride stores an admin override and re-persists the grade.
	ApplyOverride(ctx context.Context, userID uint, view *structure.View, subsection structure.BlockID, cfg models.CourseConfig, override models.SubsectionGradeOverride) (SubsectionGradeValue, error)
}

type subsectionGradeService struct {
	reader ScoreReader
	grades repository.GradeRepository
	logger zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewSubsectionGradeService builds the aggregator.
func NewSubsectionGradeService(reader ScoreReader, grades repository.GradeRepository, logger zerolog.Logger) SubsectionGradeService {
	return &subsectionGradeService{
		reader: reader,
		grades: grades,
		logger: logger.With().Str("component", "subsection_grade_service").Logger(),
		tracer: otel.Tracer("github.com/mirelo-edu/coursegate-api/internal/service/subsection_grades"),
		now:    time.Now,
	}
}

func (s *subsectionGradeService) Compute(ctx context.Context, userID uint, view *structure.View, subsection structure.BlockID) (SubsectionGradeValue, error) {
	started := s.now()
	defer func() {
		observability.RollupLatency().WithLabelValues("subsection").Observe(time.Since(started).Seconds())
	}()

	node, err := view.Get(subsection)
	if err != nil {
		return SubsectionGradeValue{}, err
	}

	value := SubsectionGradeValue{
		UsageKey:      subsection,
		DisplayName:   node.DisplayName,
		Format:        node.Format,
		Graded:        node.Graded,
		Due:           node.Due,
		ProblemScores: map[structure.BlockID]ProblemScore{},
	}

	for _, problemID := range view.Descendants(subsection) {
		problemNode, err := view.Get(problemID)
		if err != nil {
			return SubsectionGradeValue{}, err
		}
		if !problemNode.Scorable() {
			continue
		}

		score, err := s.reader.Read(ctx, userID, problemNode, false)
		if err != nil {
			return SubsectionGradeValue{}, err
		}
		if score == nil {
			continue
		}

		value.ProblemScores[problemID] = *score
		value.AllTotal.Earned += score.WeightedEarned
		value.AllTotal.Possible += score.WeightedPossible
		if score.Graded && score.WeightedPossible > 0 {
			value.GradedTotal.Earned += score.WeightedEarned
			value.GradedTotal.Possible += score.WeightedPossible
		}
		if score.FirstAttemptedAt != nil {
			if value.FirstAttemptedAt == nil || score.FirstAttemptedAt.Before(*value.FirstAttemptedAt) {
				value.FirstAttemptedAt = score.FirstAttemptedAt
			}
		}
	}

	if err := s.applyStoredOverride(ctx, userID, &value); err != nil {
		return SubsectionGradeValue{}, err
	}

	return value, nil
}

func (s *subsectionGradeService) Read(ctx context.Context, userID uint, view *structure.View, subsection structure.BlockID, cfg models.CourseConfig) (SubsectionGradeValue, error) {
	if !cfg.PersistentGradesEnabled {
		value, err := s.Compute(ctx, userID, view, subsection)
		if err != nil {
			return SubsectionGradeValue{}, err
		}
		return s.assumeZero(value, cfg), nil
	}

	row, err := s.grades.GetSubsection(ctx, userID, subsection.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No persisted row: the learner has not engaged. Synthesize
			// the zero grade without writing anything.
			value, err := s.Compute(ctx, userID, view, subsection)
			if err != nil {
				return SubsectionGradeValue{}, err
			}
			return s.assumeZero(value, cfg), nil
		}
		return SubsectionGradeValue{}, err
	}

	node, err := view.Get(subsection)
	if err != nil {
		return SubsectionGradeValue{}, err
	}

	return gradeValueFromRow(row, node), nil
}

// assumeZero applies the course policy that treats an absent grade as an
// attempted zero. The flag never reaches the write path.
func (s *subsectionGradeService) assumeZero(value SubsectionGradeValue, cfg models.CourseConfig) SubsectionGradeValue {
	if cfg.AssumeZeroIfAbsent && !value.Attempted() {
		value.AssumedZero = true
	}
	return value
}

func (s *subsectionGradeService) Update(ctx context.Context, userID uint, view *structure.View, subsection structure.BlockID, cfg models.CourseConfig, opts SubsectionUpdateOptions) (SubsectionGradeValue, error) {
	ctx, span := s.tracer.Start(ctx, "grades.subsection.update", trace.WithAttributes(
		attribute.Int64("grades.user_id", int64(userID)),
		attribute.String("grades.usage_key", subsection.String()),
		attribute.Bool("grades.only_if_higher", opts.OnlyIfHigher),
	))
	defer span.End()

	value, err := s.Compute(ctx, userID, view, subsection)
	if err != nil {
		span.RecordError(err)
		return SubsectionGradeValue{}, err
	}

	if !cfg.PersistentGradesEnabled {
		return value, nil
	}

	if !value.Attempted() {
		if opts.ScoreDeleted {
			// State reset removed the last attempt; drop the stale row.
			if err := s.grades.DeleteSubsection(ctx, userID, subsection.String()); err != nil {
				span.RecordError(err)
				return SubsectionGradeValue{}, err
			}
		}
		// Write-only-if-engaged: no row for unattempted subsections.
		return value, nil
	}

	row, err := s.rowFromValue(userID, view.Course(), value)
	if err != nil {
		span.RecordError(err)
		return SubsectionGradeValue{}, err
	}

	if opts.OnlyIfHigher {
		written, err := s.grades.UpdateSubsectionIfHigher(ctx, &row)
		if err != nil {
			if errors.Is(err, repository.ErrGradeWriteConflict) {
				observability.GradeWriteConflicts().Inc()
			}
			span.RecordError(err)
			return SubsectionGradeValue{}, err
		}
		if written {
			observability.GradeWrites().WithLabelValues("subsection").Inc()
		}
		return value, nil
	}

	if err := s.grades.UpsertSubsection(ctx, &row); err != nil {
		span.RecordError(err)
		return SubsectionGradeValue{}, err
	}
	observability.GradeWrites().WithLabelValues("subsection").Inc()

	return value, nil
}

func (s *subsectionGradeService) ApplyOverride(ctx context.Context, userID uint, view *structure.View, subsection structure.BlockID, cfg models.CourseConfig, override models.SubsectionGradeOverride) (SubsectionGradeValue, error) {
	// An override needs a persisted row to attach to; make sure one
	// exists even for an unengaged learner.
	value, err := s.Compute(ctx, userID, view, subsection)
	if err != nil {
		return SubsectionGradeValue{}, err
	}
	row, err := s.rowFromValue(userID, view.Course(), value)
	if err != nil {
		return SubsectionGradeValue{}, err
	}
	if err := s.grades.UpsertSubsection(ctx, &row); err != nil {
		return SubsectionGradeValue{}, err
	}

	stored, err := s.grades.GetSubsection(ctx, userID, subsection.String())
	if err != nil {
		return SubsectionGradeValue{}, err
	}

	override.GradeID = stored.ID
	if err := s.grades.UpsertOverride(ctx, &override); err != nil {
		return SubsectionGradeValue{}, err
	}
	observability.GradeWrites().WithLabelValues("override").Inc()

	return s.Update(ctx, userID, view, subsection, cfg, SubsectionUpdateOptions{})
}

func (s *subsectionGradeService) applyStoredOverride(ctx context.Context, userID uint, value *SubsectionGradeValue) error {
	row, err := s.grades.GetSubsection(ctx, userID, value.UsageKey.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	override, err := s.grades.GetOverride(ctx, row.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if override.EarnedAllOverride != nil {
		value.AllTotal.Earned = *override.EarnedAllOverride
	}
	if override.PossibleAllOverride != nil {
		value.AllTotal.Possible = *override.PossibleAllOverride
	}
	if override.EarnedGradedOverride != nil {
		value.GradedTotal.Earned = *override.EarnedGradedOverride
	}
	if override.PossibleGradedOverride != nil {
		value.GradedTotal.Possible = *override.PossibleGradedOverride
	}
	return nil
}

func (s *subsectionGradeService) rowFromValue(userID uint, courseID structure.CourseID, value SubsectionGradeValue) (models.SubsectionGrade, error) {
	scores, err := json.Marshal(value.ProblemScores)
	if err != nil {
		return models.SubsectionGrade{}, err
	}

	return models.SubsectionGrade{
		UserID:           userID,
		CourseID:         courseID.String(),
		UsageKey:         value.UsageKey.String(),
		EarnedAll:        value.AllTotal.Earned,
		PossibleAll:      value.AllTotal.Possible,
		EarnedGraded:     value.GradedTotal.Earned,
		PossibleGraded:   value.GradedTotal.Possible,
		FirstAttemptedAt: value.FirstAttemptedAt,
		ProblemScores:    datatypes.JSON(scores),
	}, nil
}

func gradeValueFromRow(row models.SubsectionGrade, node structure.BlockNode) SubsectionGradeValue {
	value := SubsectionGradeValue{
		UsageKey:         structure.BlockID(row.UsageKey),
		DisplayName:      node.DisplayName,
		Format:           node.Format,
		Graded:           node.Graded,
		AllTotal:         ScorePair{Earned: row.EarnedAll, Possible: row.PossibleAll},
		GradedTotal:      ScorePair{Earned: row.EarnedGraded, Possible: row.PossibleGraded},
		FirstAttemptedAt: row.FirstAttemptedAt,
		Due:              node.Due,
	}

	if len(row.ProblemScores) > 0 {
		var scores map[structure.BlockID]ProblemScore
		if err := json.Unmarshal(row.ProblemScores, &scores); err == nil {
			value.ProblemScores = scores
		}
	}
	return value
}
