package dto

import "github.com/mirelo-edu/coursegate-api/internal/models"

// CourseConfigRequest updates the per-course toggles.
type CourseConfigRequest struct {
	EnableSubsectionGating  *bool `json:"enable_subsection_gating"`
	AssumeZeroIfAbsent      *bool `json:"assume_zero_if_absent"`
	PersistentGradesEnabled *bool `json:"persistent_grades_enabled"`
}

// CourseConfigResponse reports the effective per-course toggles.
type CourseConfigResponse struct {
	CourseID                string `json:"course_id"`
	EnableSubsectionGating  bool   `json:"enable_subsection_gating"`
	AssumeZeroIfAbsent      bool   `json:"assume_zero_if_absent"`
	PersistentGradesEnabled bool   `json:"persistent_grades_enabled"`
}

// NewCourseConfigResponse converts a model into a DTO.
func NewCourseConfigResponse(model models.CourseConfig) CourseConfigResponse {
	return CourseConfigResponse{
		CourseID:                model.CourseID,
		EnableSubsectionGating:  model.EnableSubsectionGating,
		AssumeZeroIfAbsent:      model.AssumeZeroIfAbsent,
		PersistentGradesEnabled: model.PersistentGradesEnabled,
	}
}

// GradingPolicyRequest replaces a course's grading policy document.
type GradingPolicyRequest struct {
	Document map[string]interface{} `json:"document" validate:"required"`
}

// GradingPolicyResponse returns the stored policy document.
type GradingPolicyResponse struct {
	CourseID string                 `json:"course_id"`
	Document map[string]interface{} `json:"document"`
}
