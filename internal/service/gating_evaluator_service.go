package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/observability"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// GatingEvaluator re-checks gate requirements whenever a learner's score
// changes and discharges milestones whose thresholds are now met. It only
// ever opens gates: a later, lower score never retracts a fulfillment.
type GatingEvaluator struct {
	configs     repository.CourseConfigRepository
	milestones  repository.MilestoneRepository
	views       StructureProvider
	subsections SubsectionGradeService
	ledger      MilestoneLedgerService
	completion  CompletionProvider
	unlocks     UnlockNotifier
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewGatingEvaluator builds the evaluator.
func NewGatingEvaluator(configs repository.CourseConfigRepository, milestones repository.MilestoneRepository, views StructureProvider, subsections SubsectionGradeService, ledger MilestoneLedgerService, completion CompletionProvider, unlocks UnlockNotifier, logger zerolog.Logger) *GatingEvaluator {
	return &GatingEvaluator{
		configs:     configs,
		milestones:  milestones,
		views:       views,
		subsections: subsections,
		ledger:      ledger,
		completion:  completion,
		unlocks:     unlocks,
		logger:      logger.With().Str("component", "gating_evaluator").Logger(),
		tracer:      otel.Tracer("github.com/mirelo-edu/coursegate-api/internal/service/gating"),
	}
}

// OnScoreWritten implements ScoreListener.
func (e *GatingEvaluator) OnScoreWritten(ctx context.Context, event ScoreWrittenEvent) error {
	cfg, err := e.configs.Get(ctx, event.CourseID.String())
	if err != nil {
		return err
	}
	if !cfg.EnableSubsectionGating {
		observability.GatingEvaluations().WithLabelValues("skipped").Inc()
		return nil
	}

	view, err := e.views.GetCourseView(ctx, event.CourseID, true)
	if err != nil {
		return err
	}
	subsection, ok := view.SubsectionOf(event.UsageKey)
	if !ok {
		observability.GatingEvaluations().WithLabelValues("skipped").Inc()
		return nil
	}

	return e.Evaluate(ctx, event.UserID, view, subsection, cfg)
}

// Evaluate checks every gate that depends on the given prerequisite
// subsection for one learner.
func (e *GatingEvaluator) Evaluate(ctx context.Context, userID uint, view *structure.View, prereqKey structure.BlockID, cfg models.CourseConfig) error {
	ctx, span := e.tracer.Start(ctx, "gating.evaluate", trace.WithAttributes(
		attribute.Int64("gating.user_id", int64(userID)),
		attribute.String("gating.prerequisite", prereqKey.String()),
	))
	defer span.End()

	milestone, err := e.milestones.GetMilestoneByNamespace(ctx, gatingNamespace(prereqKey))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Not a prerequisite; nothing gates on this subsection.
			observability.GatingEvaluations().WithLabelValues("skipped").Inc()
			return nil
		}
		span.RecordError(err)
		return err
	}

	fulfilled, err := e.milestones.UserHasMilestone(ctx, userID, milestone.ID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if fulfilled {
		observability.GatingEvaluations().WithLabelValues("already_fulfilled").Inc()
		return nil
	}

	grade, err := e.subsections.Compute(ctx, userID, view, prereqKey)
	if err != nil {
		span.RecordError(err)
		return err
	}
	scorePct := grade.GradedTotal.Percent()

	requires := models.MilestoneRelationshipRequires
	links, err := e.milestones.ListContentLinks(ctx, view.Course().String(), repository.ContentMilestoneFilter{
		Relationship: &requires,
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	satisfied := false
	unlocked := make([]structure.BlockID, 0, 1)
	for _, link := range links {
		if link.MilestoneID != milestone.ID {
			continue
		}
		ok, err := e.requirementsMet(ctx, userID, link, scorePct)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if ok {
			satisfied = true
			unlocked = append(unlocked, structure.BlockID(link.UsageKey))
		}
	}

	if !satisfied {
		observability.GatingEvaluations().WithLabelValues("unsatisfied").Inc()
		return nil
	}

	if err := e.ledger.Fulfill(ctx, userID, prereqKey); err != nil {
		span.RecordError(err)
		return err
	}
	observability.GatingEvaluations().WithLabelValues("fulfilled").Inc()

	for _, gatedKey := range unlocked {
		e.unlocks.NotifyUnlock(ctx, UnlockEvent{
			UserID:          userID,
			CourseID:        view.Course(),
			GatedKey:        gatedKey,
			PrerequisiteKey: prereqKey,
			UnlockedAt:      time.Now().UTC(),
		})
	}

	e.logger.Info().
		Uint("user_id", userID).
		Str("prerequisite", prereqKey.String()).
		Float64("score_pct", scorePct).
		Msg("gate requirements met")

	return nil
}

// requirementsMet checks one requires-link against the learner's score and
// completion. A requirements document that cannot be decoded counts as
// unsatisfied so a malformed policy fails closed.
func (e *GatingEvaluator) requirementsMet(ctx context.Context, userID uint, link models.CourseContentMilestone, scorePct float64) (bool, error) {
	requirements, err := link.DecodeRequirements()
	if err != nil {
		e.logger.Warn().Err(err).
			Str("usage_key", link.UsageKey).
			Msg("malformed gating requirements; treating gate as closed")
		return false, nil
	}

	if requirements.MinScore == nil {
		// An edge without a score threshold is an authoring mistake; it
		// must not open on the next arbitrary score event.
		e.logger.Warn().
			Str("usage_key", link.UsageKey).
			Msg("gating requirements missing min_score; treating gate as closed")
		return false, nil
	}
	if scorePct < float64(*requirements.MinScore) {
		return false, nil
	}
	if requirements.MinCompletion != nil {
		completionPct, err := e.completion.SubsectionCompletionPercentage(ctx, userID, prerequisiteFromNamespace(link.Milestone.Namespace))
		if err != nil {
			return false, err
		}
		if completionPct < float64(*requirements.MinCompletion) {
			return false, nil
		}
	}

	return true, nil
}
