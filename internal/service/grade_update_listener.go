package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/repository"
)

// GradeUpdateListener keeps persisted grades in step with raw score
// writes: every score write re-rolls the containing subsection and then
// the course grade.
type GradeUpdateListener struct {
	configs     repository.CourseConfigRepository
	views       StructureProvider
	subsections SubsectionGradeService
	courses     CourseGradeService
	logger      zerolog.Logger
}

// NewGradeUpdateListener builds the rollup listener.
func NewGradeUpdateListener(configs repository.CourseConfigRepository, views StructureProvider, subsections SubsectionGradeService, courses CourseGradeService, logger zerolog.Logger) *GradeUpdateListener {
	return &GradeUpdateListener{
		configs:     configs,
		views:       views,
		subsections: subsections,
		courses:     courses,
		logger:      logger.With().Str("component", "grade_update_listener").Logger(),
	}
}

// OnScoreWritten implements ScoreListener.
func (l *GradeUpdateListener) OnScoreWritten(ctx context.Context, event ScoreWrittenEvent) error {
	cfg, err := l.configs.Get(ctx, event.CourseID.String())
	if err != nil {
		return err
	}

	// The rollup reads the full structure; visibility filtering is a
	// delivery concern, not a grading one.
	view, err := l.views.GetCourseView(ctx, event.CourseID, true)
	if err != nil {
		return err
	}

	subsection, ok := view.SubsectionOf(event.UsageKey)
	if !ok {
		l.logger.Debug().
			Str("usage_key", event.UsageKey.String()).
			Msg("score written outside any subsection")
		return nil
	}

	if _, err := l.subsections.Update(ctx, event.UserID, view, subsection, cfg, SubsectionUpdateOptions{
		ScoreDeleted: event.Deleted,
	}); err != nil {
		return err
	}

	_, err = l.courses.Update(ctx, event.UserID, view, cfg)
	return err
}
