package models

import "time"

// BlockCompletion tracks how far the learner got through one block, as a
// fraction in [0, 1]. SubsectionKey denormalises the containing
// subsection so completion can be aggregated without loading the course
// structure.
type BlockCompletion struct {
	ID            uint      `gorm:"primaryKey"`
	UserID        uint      `gorm:"not null;index:idx_completion,unique,priority:1"`
	CourseID      string    `gorm:"size:255;not null;index"`
	UsageKey      string    `gorm:"size:255;not null;index:idx_completion,unique,priority:2"`
	SubsectionKey string    `gorm:"size:255;not null;index"`
	Completion    float64   `gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
