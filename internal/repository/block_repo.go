package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mirelo-edu/coursegate-api/internal/models"
)

// BlockRepository reads the authored course structure. The structure is
// produced by an external authoring pipeline and is read-only here.
type BlockRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.CourseBlock, error)
	GetByUsageKey(ctx context.Context, courseID, usageKey string) (models.CourseBlock, error)
}

type blockRepository struct {
	db *gorm.DB
}

// NewBlockRepository instantiates the repository.
func NewBlockRepository(db *gorm.DB) BlockRepository {
	return &blockRepository{db: db}
}

func (r *blockRepository) ListByCourse(ctx context.Context, courseID string) ([]models.CourseBlock, error) {
	var blocks []models.CourseBlock
	if err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("position ASC").
		Find(&blocks).Error; err != nil {
		return nil, err
	}

	return blocks, nil
}

func (r *blockRepository) GetByUsageKey(ctx context.Context, courseID, usageKey string) (models.CourseBlock, error) {
	var block models.CourseBlock
	if err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Where("usage_key = ?", usageKey).
		First(&block).Error; err != nil {
		return models.CourseBlock{}, err
	}

	return block, nil
}
