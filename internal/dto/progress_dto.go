package dto

import "time"

// SubsectionProgressRow is one subsection line of the learner's course
// progress report, including its gating badge.
type SubsectionProgressRow struct {
	UsageKey    string     `json:"usage_key"`
	DisplayName string     `json:"display_name"`
	Progress    string     `json:"progress"`
	Percent     float64    `json:"percent"`
	State       string     `json:"state"`
	Access      string     `json:"access"`
	Requirement string     `json:"requirement,omitempty"`
	Due         *time.Time `json:"due,omitempty"`
}

// ChapterProgressRow groups subsection progress under a chapter.
type ChapterProgressRow struct {
	UsageKey    string                  `json:"usage_key"`
	DisplayName string                  `json:"display_name"`
	Progress    string                  `json:"progress"`
	Percent     float64                 `json:"percent"`
	State       string                  `json:"state"`
	Subsections []SubsectionProgressRow `json:"subsections"`
}

// CourseProgressResponse is the learner's full progress report.
type CourseProgressResponse struct {
	CourseID  string               `json:"course_id"`
	Progress  string               `json:"progress"`
	Percent   float64              `json:"percent"`
	State     string               `json:"state"`
	Chapters  []ChapterProgressRow `json:"chapters"`
	UpdatedAt time.Time            `json:"updated_at"`
}
