package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// CourseConfigService exposes per-course feature toggles.
type CourseConfigService interface {
	Get(ctx context.Context, courseID structure.CourseID) (models.CourseConfig, error)
	// Set replaces the course's toggles and invalidates derived caches.
	Set(ctx context.Context, courseID structure.CourseID, config models.CourseConfig) (models.CourseConfig, error)
}

type courseConfigService struct {
	configs repository.CourseConfigRepository
	views   StructureProvider
	logger  zerolog.Logger
}

// NewCourseConfigService builds the config surface.
func NewCourseConfigService(configs repository.CourseConfigRepository, views StructureProvider, logger zerolog.Logger) CourseConfigService {
	return &courseConfigService{
		configs: configs,
		views:   views,
		logger:  logger.With().Str("component", "course_config_service").Logger(),
	}
}

func (s *courseConfigService) Get(ctx context.Context, courseID structure.CourseID) (models.CourseConfig, error) {
	return s.configs.Get(ctx, courseID.String())
}

func (s *courseConfigService) Set(ctx context.Context, courseID structure.CourseID, config models.CourseConfig) (models.CourseConfig, error) {
	config.CourseID = courseID.String()
	if err := s.configs.Upsert(ctx, &config); err != nil {
		return models.CourseConfig{}, err
	}

	s.views.Invalidate(ctx, courseID)
	s.logger.Info().
		Str("course_id", courseID.String()).
		Bool("enable_subsection_gating", config.EnableSubsectionGating).
		Msg("course configuration updated")

	return s.configs.Get(ctx, courseID.String())
}
