package models

import "time"

// StudentScore is the raw per-problem score record: what the learner
// earned out of what was possible, and when they first attempted the
// problem. Created on first submission and overwritten on re-submission;
// removed only by an explicit admin reset.
type StudentScore struct {
	ID               uint      `gorm:"primaryKey"`
	UserID           uint      `gorm:"not null;index:idx_user_usage,unique,priority:1"`
	CourseID         string    `gorm:"size:255;not null;index"`
	UsageKey         string    `gorm:"size:255;not null;index:idx_user_usage,unique,priority:2"`
	RawEarned        float64   `gorm:"not null;default:0"`
	RawPossible      float64   `gorm:"not null;default:0"`
	FirstAttemptedAt *time.Time
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
