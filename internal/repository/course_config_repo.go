package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mirelo-edu/coursegate-api/internal/models"
)

// CourseConfigRepository persists per-course feature toggles.
type CourseConfigRepository interface {
	// Get returns the course's config, falling back to the defaults when
	// no row exists.
	Get(ctx context.Context, courseID string) (models.CourseConfig, error)
	Upsert(ctx context.Context, config *models.CourseConfig) error
}

type courseConfigRepository struct {
	db *gorm.DB
}

// NewCourseConfigRepository instantiates the repository.
func NewCourseConfigRepository(db *gorm.DB) CourseConfigRepository {
	return &courseConfigRepository{db: db}
}

func (r *courseConfigRepository) Get(ctx context.Context, courseID string) (models.CourseConfig, error) {
	var config models.CourseConfig
	err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		First(&config).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.DefaultCourseConfig(courseID), nil
		}
		return models.CourseConfig{}, err
	}

	return config, nil
}

func (r *courseConfigRepository) Upsert(ctx context.Context, config *models.CourseConfig) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "course_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enable_subsection_gating", "assume_zero_if_absent",
			"persistent_grades_enabled", "updated_at",
		}),
	}).Create(config).Error
}
