package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mirelo-edu/coursegate-api/internal/models"
)

// ContentMilestoneFilter narrows course content milestone queries.
type ContentMilestoneFilter struct {
	UsageKey     *string
	Relationship *string
}

// MilestoneRepository persists milestones, their links to course content
// and the per-user fulfillment ledger.
type MilestoneRepository interface {
	GetMilestoneByNamespace(ctx context.Context, namespace string) (models.Milestone, error)
	EnsureMilestone(ctx context.Context, milestone *models.Milestone) error
	DeleteMilestone(ctx context.Context, id uint) error

	CreateContentLink(ctx context.Context, link *models.CourseContentMilestone) error
	UpdateContentLink(ctx context.Context, link *models.CourseContentMilestone) error
	DeleteContentLinks(ctx context.Context, courseID, usageKey, relationship string) error
	DeleteLinksByMilestone(ctx context.Context, milestoneID uint) error
	ListContentLinks(ctx context.Context, courseID string, filter ContentMilestoneFilter) ([]models.CourseContentMilestone, error)
	GetRequiresLink(ctx context.Context, courseID, usageKey string) (models.CourseContentMilestone, error)
	CountLinksByMilestone(ctx context.Context, milestoneID uint) (int64, error)

	AddUserMilestone(ctx context.Context, userID, milestoneID uint, collectedAt time.Time) error
	UserHasMilestone(ctx context.Context, userID, milestoneID uint) (bool, error)
	ListUserMilestoneIDs(ctx context.Context, userID uint) ([]uint, error)
	DeleteUserMilestone(ctx context.Context, userID, milestoneID uint) error
}

type milestoneRepository struct {
	db *gorm.DB
}

// NewMilestoneRepository instantiates the repository.
func NewMilestoneRepository(db *gorm.DB) MilestoneRepository {
	return &milestoneRepository{db: db}
}

func (r *milestoneRepository) GetMilestoneByNamespace(ctx context.Context, namespace string) (models.Milestone, error) {
	var milestone models.Milestone
	if err := r.db.WithContext(ctx).
		Where("namespace = ?", namespace).
		First(&milestone).Error; err != nil {
		return models.Milestone{}, err
	}

	return milestone, nil
}

func (r *milestoneRepository) EnsureMilestone(ctx context.Context, milestone *models.Milestone) error {
	return r.db.WithContext(ctx).
		Where("namespace = ?", milestone.Namespace).
		FirstOrCreate(milestone).Error
}

func (r *milestoneRepository) DeleteMilestone(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Milestone{}, id).Error
}

func (r *milestoneRepository) CreateContentLink(ctx context.Context, link *models.CourseContentMilestone) error {
	return r.db.WithContext(ctx).Create(link).Error
}

func (r *milestoneRepository) UpdateContentLink(ctx context.Context, link *models.CourseContentMilestone) error {
	return r.db.WithContext(ctx).Save(link).Error
}

func (r *milestoneRepository) DeleteContentLinks(ctx context.Context, courseID, usageKey, relationship string) error {
	query := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Where("usage_key = ?", usageKey)
	if relationship != "" {
		query = query.Where("relationship = ?", relationship)
	}

	return query.Delete(&models.CourseContentMilestone{}).Error
}

func (r *milestoneRepository) DeleteLinksByMilestone(ctx context.Context, milestoneID uint) error {
	return r.db.WithContext(ctx).
		Where("milestone_id = ?", milestoneID).
		Delete(&models.CourseContentMilestone{}).Error
}

func (r *milestoneRepository) ListContentLinks(ctx context.Context, courseID string, filter ContentMilestoneFilter) ([]models.CourseContentMilestone, error) {
	query := r.db.WithContext(ctx).Model(&models.CourseContentMilestone{}).
		Preload("Milestone").
		Where("course_id = ?", courseID).
		Where("active = ?", true)

	if filter.UsageKey != nil {
		query = query.Where("usage_key = ?", *filter.UsageKey)
	}
	if filter.Relationship != nil {
		query = query.Where("relationship = ?", *filter.Relationship)
	}

	var links []models.CourseContentMilestone
	if err := query.Order("created_at ASC").Find(&links).Error; err != nil {
		return nil, err
	}

	return links, nil
}

func (r *milestoneRepository) GetRequiresLink(ctx context.Context, courseID, usageKey string) (models.CourseContentMilestone, error) {
	var link models.CourseContentMilestone
	if err := r.db.WithContext(ctx).
		Preload("Milestone").
		Where("course_id = ?", courseID).
		Where("usage_key = ?", usageKey).
		Where("relationship = ?", models.MilestoneRelationshipRequires).
		Where("active = ?", true).
		First(&link).Error; err != nil {
		return models.CourseContentMilestone{}, err
	}

	return link, nil
}

func (r *milestoneRepository) CountLinksByMilestone(ctx context.Context, milestoneID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.CourseContentMilestone{}).
		Where("milestone_id = ?", milestoneID).
		Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

func (r *milestoneRepository) AddUserMilestone(ctx context.Context, userID, milestoneID uint, collectedAt time.Time) error {
	record := models.UserMilestone{
		UserID:      userID,
		MilestoneID: milestoneID,
		CollectedAt: collectedAt,
	}

	// Idempotent per (user, milestone): the first insertion wins and the
	// original timestamp is preserved.
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "milestone_id"}},
		DoNothing: true,
	}).Create(&record).Error
}

func (r *milestoneRepository) UserHasMilestone(ctx context.Context, userID, milestoneID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.UserMilestone{}).
		Where("user_id = ?", userID).
		Where("milestone_id = ?", milestoneID).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *milestoneRepository) ListUserMilestoneIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.UserMilestone{}).
		Where("user_id = ?", userID).
		Pluck("milestone_id", &ids).Error; err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *milestoneRepository) DeleteUserMilestone(ctx context.Context, userID, milestoneID uint) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("milestone_id = ?", milestoneID).
		Delete(&models.UserMilestone{}).Error
}
