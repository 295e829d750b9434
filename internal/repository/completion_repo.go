package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mirelo-edu/coursegate-api/internal/models"
)

// CompletionRepository persists per-block completion fractions.
type CompletionRepository interface {
	Upsert(ctx context.Context, completion *models.BlockCompletion) error
	// AggregateBySubsection returns the mean completion over the rows
	// recorded under a subsection, in [0, 1]. No rows means zero.
	AggregateBySubsection(ctx context.Context, userID uint, subsectionKey string) (float64, int64, error)
	ListBySubsection(ctx context.Context, userID uint, subsectionKey string) ([]models.BlockCompletion, error)
}

type completionRepository struct {
	db *gorm.DB
}

// NewCompletionRepository instantiates the repository.
func NewCompletionRepository(db *gorm.DB) CompletionRepository {
	return &completionRepository{db: db}
}

func (r *completionRepository) Upsert(ctx context.Context, completion *models.BlockCompletion) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "usage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"completion", "subsection_key", "updated_at",
		}),
	}).Create(completion).Error
}

func (r *completionRepository) AggregateBySubsection(ctx context.Context, userID uint, subsectionKey string) (float64, int64, error) {
	var result struct {
		Mean  float64
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.BlockCompletion{}).
		Select("COALESCE(AVG(completion), 0) AS mean, COUNT(*) AS count").
		Where("user_id = ? AND subsection_key = ?", userID, subsectionKey).
		Scan(&result).Error
	if err != nil {
		return 0, 0, err
	}
	return result.Mean, result.Count, nil
}

func (r *completionRepository) ListBySubsection(ctx context.Context, userID uint, subsectionKey string) ([]models.BlockCompletion, error) {
	var rows []models.BlockCompletion
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND subsection_key = ?", userID, subsectionKey).
		Order("usage_key").
		Find(&rows).Error
	return rows, err
}
