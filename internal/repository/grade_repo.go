package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mirelo-edu/coursegate-api/internal/models"
)

// ErrGradeWriteConflict indicates contention on a conditional grade write
// that persisted after the bounded retries.
var ErrGradeWriteConflict = errors.New("grade write conflict")

const updateIfHigherAttempts = 3

// GradeRepository persists derived subsection and course grades, including
// the conditional update used by the only_if_higher path.
type GradeRepository interface {
	GetSubsection(ctx context.Context, userID uint, usageKey string) (models.SubsectionGrade, error)
	ListSubsectionsByCourse(ctx context.Context, userID uint, courseID string) ([]models.SubsectionGrade, error)
	UpsertSubsection(ctx context.Context, grade *models.SubsectionGrade) error
	// UpdateSubsectionIfHigher writes the grade only when its graded
	// earned value strictly exceeds the stored one. The write is a single
	// conditional UPDATE so concurrent recomputations cannot clobber a
	// higher stored grade. It reports whether anything was written.
	UpdateSubsectionIfHigher(ctx context.Context, grade *models.SubsectionGrade) (bool, error)
	DeleteSubsection(ctx context.Context, userID uint, usageKey string) error

	GetOverride(ctx context.Context, gradeID uint) (models.SubsectionGradeOverride, error)
	UpsertOverride(ctx context.Context, override *models.SubsectionGradeOverride) error
	DeleteOverride(ctx context.Context, gradeID uint) error

	GetCourseGrade(ctx context.Context, userID uint, courseID string) (models.CourseGrade, error)
	UpsertCourseGrade(ctx context.Context, grade *models.CourseGrade) error
}

type gradeRepository struct {
	db *gorm.DB
}

// NewGradeRepository instantiates the repository.
func NewGradeRepository(db *gorm.DB) GradeRepository {
	return &gradeRepository{db: db}
}

func (r *gradeRepository) GetSubsection(ctx context.Context, userID uint, usageKey string) (models.SubsectionGrade, error) {
	var grade models.SubsectionGrade
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("usage_key = ?", usageKey).
		First(&grade).Error; err != nil {
		return models.SubsectionGrade{}, err
	}

	return grade, nil
}

func (r *gradeRepository) ListSubsectionsByCourse(ctx context.Context, userID uint, courseID string) ([]models.SubsectionGrade, error) {
	var grades []models.SubsectionGrade
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		Find(&grades).Error; err != nil {
		return nil, err
	}

	return grades, nil
}

func (r *gradeRepository) UpsertSubsection(ctx context.Context, grade *models.SubsectionGrade) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "usage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"earned_all", "possible_all", "earned_graded", "possible_graded",
			"problem_scores", "updated_at",
		}),
	}).Create(grade).Error; err != nil {
		return err
	}

	// first_attempted is write-once: set it only where it is still null.
	if grade.FirstAttemptedAt != nil {
		return r.db.WithContext(ctx).Model(&models.SubsectionGrade{}).
			Where("user_id = ?", grade.UserID).
			Where("usage_key = ?", grade.UsageKey).
			Where("first_attempted_at IS NULL").
			Update("first_attempted_at", *grade.FirstAttemptedAt).Error
	}

	return nil
}

func (r *gradeRepository) UpdateSubsectionIfHigher(ctx context.Context, grade *models.SubsectionGrade) (bool, error) {
	var lastErr error
	for attempt := 0; attempt < updateIfHigherAttempts; attempt++ {
		updated, err := r.updateIfHigherOnce(ctx, grade)
		if err == nil {
			return updated, nil
		}
		lastErr = err
	}

	return false, errors.Join(ErrGradeWriteConflict, lastErr)
}

func (r *gradeRepository) updateIfHigherOnce(ctx context.Context, grade *models.SubsectionGrade) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.SubsectionGrade{}).
		Where("user_id = ?", grade.UserID).
		Where("usage_key = ?", grade.UsageKey).
		Where("earned_graded < ?", grade.EarnedGraded).
		Updates(map[string]interface{}{
			"earned_all":      grade.EarnedAll,
			"possible_all":    grade.PossibleAll,
			"earned_graded":   grade.EarnedGraded,
			"possible_graded": grade.PossibleGraded,
			"problem_scores":  grade.ProblemScores,
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		if grade.FirstAttemptedAt != nil {
			if err := r.db.WithContext(ctx).Model(&models.SubsectionGrade{}).
				Where("user_id = ?", grade.UserID).
				Where("usage_key = ?", grade.UsageKey).
				Where("first_attempted_at IS NULL").
				Update("first_attempted_at", *grade.FirstAttemptedAt).Error; err != nil {
				return false, err
			}
		}
		return true, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.SubsectionGrade{}).
		Where("user_id = ?", grade.UserID).
		Where("usage_key = ?", grade.UsageKey).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		// A stored grade at least as high already exists; leave it.
		return false, nil
	}

	if err := r.db.WithContext(ctx).Create(grade).Error; err != nil {
		// Likely a concurrent insert between the count and the create;
		// the caller loop re-runs the conditional update.
		return false, err
	}

	return true, nil
}

func (r *gradeRepository) DeleteSubsection(ctx context.Context, userID uint, usageKey string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("usage_key = ?", usageKey).
		Delete(&models.SubsectionGrade{}).Error
}

func (r *gradeRepository) GetOverride(ctx context.Context, gradeID uint) (models.SubsectionGradeOverride, error) {
	var override models.SubsectionGradeOverride
	if err := r.db.WithContext(ctx).
		Where("grade_id = ?", gradeID).
		First(&override).Error; err != nil {
		return models.SubsectionGradeOverride{}, err
	}

	return override, nil
}

func (r *gradeRepository) UpsertOverride(ctx context.Context, override *models.SubsectionGradeOverride) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "grade_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"earned_all_override", "possible_all_override",
			"earned_graded_override", "possible_graded_override",
			"reason", "created_by", "updated_at",
		}),
	}).Create(override).Error
}

func (r *gradeRepository) DeleteOverride(ctx context.Context, gradeID uint) error {
	return r.db.WithContext(ctx).
		Where("grade_id = ?", gradeID).
		Delete(&models.SubsectionGradeOverride{}).Error
}

func (r *gradeRepository) GetCourseGrade(ctx context.Context, userID uint, courseID string) (models.CourseGrade, error) {
	var grade models.CourseGrade
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		First(&grade).Error; err != nil {
		return models.CourseGrade{}, err
	}

	return grade, nil
}

func (r *gradeRepository) UpsertCourseGrade(ctx context.Context, grade *models.CourseGrade) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"percent", "letter_grade", "passed", "breakdown", "updated_at",
		}),
	}).Create(grade).Error; err != nil {
		return err
	}

	// passed_at is stamped on the first transition into passing only.
	if grade.Passed && grade.PassedAt != nil {
		return r.db.WithContext(ctx).Model(&models.CourseGrade{}).
			Where("user_id = ?", grade.UserID).
			Where("course_id = ?", grade.CourseID).
			Where("passed_at IS NULL").
			Update("passed_at", *grade.PassedAt).Error
	}

	return nil
}
