package models

import "time"

// CourseConfig carries the per-course toggles threaded explicitly through
// the grading and gating engines. A course without a row uses
// DefaultCourseConfig.
type CourseConfig struct {
	ID                      uint      `gorm:"primaryKey"`
	CourseID                string    `gorm:"size:255;not null;uniqueIndex"`
	EnableSubsectionGating  bool      `gorm:"not null;default:false"`
	AssumeZeroIfAbsent      bool      `gorm:"not null;default:false"`
	PersistentGradesEnabled bool      `gorm:"not null;default:true"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// DefaultCourseConfig returns the toggles applied to courses without an
// explicit configuration row.
func DefaultCourseConfig(courseID string) CourseConfig {
	return CourseConfig{
		CourseID:                courseID,
		EnableSubsectionGating:  false,
		AssumeZeroIfAbsent:      false,
		PersistentGradesEnabled: true,
	}
}
