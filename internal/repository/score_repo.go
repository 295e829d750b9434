package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mirelo-edu/coursegate-api/internal/models"
)

// ScoreRepository persists raw per-problem scores.
type ScoreRepository interface {
	Get(ctx context.Context, userID uint, usageKey string) (models.StudentScore, error)
	ListByUserAndCourse(ctx context.Context, userID uint, courseID string) ([]models.StudentScore, error)
	Upsert(ctx context.Context, score *models.StudentScore) error
	Delete(ctx context.Context, userID uint, usageKey string) error
}

type scoreRepository struct {
	db *gorm.DB
}

// NewScoreRepository instantiates the repository.
func NewScoreRepository(db *gorm.DB) ScoreRepository {
	return &scoreRepository{db: db}
}

func (r *scoreRepository) Get(ctx context.Context, userID uint, usageKey string) (models.StudentScore, error) {
	var score models.StudentScore
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("usage_key = ?", usageKey).
		First(&score).Error; err != nil {
		return models.StudentScore{}, err
	}

	return score, nil
}

func (r *scoreRepository) ListByUserAndCourse(ctx context.Context, userID uint, courseID string) ([]models.StudentScore, error) {
	var scores []models.StudentScore
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		Find(&scores).Error; err != nil {
		return nil, err
	}

	return scores, nil
}

func (r *scoreRepository) Upsert(ctx context.Context, score *models.StudentScore) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "usage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"raw_earned", "raw_possible", "updated_at",
		}),
	}).Create(score).Error
}

func (r *scoreRepository) Delete(ctx context.Context, userID uint, usageKey string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("usage_key = ?", usageKey).
		Delete(&models.StudentScore{}).Error
}
