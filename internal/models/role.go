package models

import "time"

// Course-scoped role names. Any of them grants the staff bypass for
// gating and visibility checks.
const (
	RoleStaff      = "staff"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// CourseAccessRole grants a user an elevated role within one course.
type CourseAccessRole struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null;index:idx_course_role,unique,priority:1"`
	CourseID  string    `gorm:"size:255;not null;index:idx_course_role,unique,priority:2"`
	Role      string    `gorm:"size:32;not null;index:idx_course_role,unique,priority:3"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Elevated reports whether the role carries staff privileges.
func (r CourseAccessRole) Elevated() bool {
	switch r.Role {
	case RoleStaff, RoleInstructor, RoleAdmin:
		return true
	default:
		return false
	}
}
