package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mirelo-edu/coursegate-api/internal/models"
)

// PolicyRepository persists course grading policy documents.
type PolicyRepository interface {
	GetByCourse(ctx context.Context, courseID string) (models.CoursePolicy, error)
	Upsert(ctx context.Context, policy *models.CoursePolicy) error
}

type policyRepository struct {
	db *gorm.DB
}

// NewPolicyRepository instantiates the repository.
func NewPolicyRepository(db *gorm.DB) PolicyRepository {
	return &policyRepository{db: db}
}

func (r *policyRepository) GetByCourse(ctx context.Context, courseID string) (models.CoursePolicy, error) {
	var policy models.CoursePolicy
	if err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		First(&policy).Error; err != nil {
		return models.CoursePolicy{}, err
	}

	return policy, nil
}

func (r *policyRepository) Upsert(ctx context.Context, policy *models.CoursePolicy) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "course_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at"}),
	}).Create(policy).Error
}
