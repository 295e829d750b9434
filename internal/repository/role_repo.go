package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mirelo-edu/coursegate-api/internal/models"
)

// RoleRepository persists course access roles.
type RoleRepository interface {
	Grant(ctx context.Context, role *models.CourseAccessRole) error
	Revoke(ctx context.Context, userID uint, courseID, role string) error
	ListByUser(ctx context.Context, userID uint, courseID string) ([]models.CourseAccessRole, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.CourseAccessRole, error)
}

type roleRepository struct {
	db *gorm.DB
}

// NewRoleRepository instantiates the repository.
func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) Grant(ctx context.Context, role *models.CourseAccessRole) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}, {Name: "role"}},
		DoNothing: true,
	}).Create(role).Error
}

func (r *roleRepository) Revoke(ctx context.Context, userID uint, courseID, role string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ? AND role = ?", userID, courseID, role).
		Delete(&models.CourseAccessRole{}).Error
}

func (r *roleRepository) ListByUser(ctx context.Context, userID uint, courseID string) ([]models.CourseAccessRole, error) {
	var roles []models.CourseAccessRole
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Find(&roles).Error
	return roles, err
}

func (r *roleRepository) ListByCourse(ctx context.Context, courseID string) ([]models.CourseAccessRole, error) {
	var roles []models.CourseAccessRole
	err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("user_id, role").
		Find(&roles).Error
	return roles, err
}
