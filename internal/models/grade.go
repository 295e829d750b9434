package models

import (
	"time"

	"gorm.io/datatypes"
)

// SubsectionGrade is the persisted per-(user, subsection) aggregate. Rows
// exist only once the learner has engaged with at least one descendant
// problem; unengaged subsections are represented by the zero value at
// read time instead of a row.
type SubsectionGrade struct {
	ID               uint           `gorm:"primaryKey"`
	UserID           uint           `gorm:"not null;index:idx_grade_user_usage,unique,priority:1;index:idx_grade_user_course"`
	CourseID         string         `gorm:"size:255;not null;index:idx_grade_user_course"`
	UsageKey         string         `gorm:"size:255;not null;index:idx_grade_user_usage,unique,priority:2"`
	EarnedAll        float64        `gorm:"not null;default:0"`
	PossibleAll      float64        `gorm:"not null;default:0"`
	EarnedGraded     float64        `gorm:"not null;default:0"`
	PossibleGraded   float64        `gorm:"not null;default:0"`
	FirstAttemptedAt *time.Time
	ProblemScores    datatypes.JSON `gorm:"type:json"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// SubsectionGradeOverride replaces the computed totals of a persisted
// subsection grade. Overrides survive recomputation: the aggregator folds
// them back in after every rollup.
type SubsectionGradeOverride struct {
	ID                     uint `gorm:"primaryKey"`
	GradeID                uint `gorm:"not null;uniqueIndex"`
	EarnedAllOverride      *float64
	PossibleAllOverride    *float64
	EarnedGradedOverride   *float64
	PossibleGradedOverride *float64
	Reason                 string    `gorm:"size:512"`
	CreatedBy              uint      `gorm:"not null"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// CourseGrade is the persisted per-(user, course) aggregate, including the
// letter grade and a JSON breakdown of per-category contributions.
// PassedAt is stamped on the first transition into passing and never
// cleared by later recomputation.
type CourseGrade struct {
	ID          uint           `gorm:"primaryKey"`
	UserID      uint           `gorm:"not null;index:idx_course_grade,unique,priority:1"`
	CourseID    string         `gorm:"size:255;not null;index:idx_course_grade,unique,priority:2"`
	Percent     float64        `gorm:"not null;default:0"`
	LetterGrade string         `gorm:"size:32"`
	Passed      bool           `gorm:"not null;default:false"`
	PassedAt    *time.Time
	Breakdown   datatypes.JSON `gorm:"type:json"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
