package dto

import (
	"time"

	"github.com/mirelo-edu/coursegate-api/internal/models"
)

// ScoreWriteRequest records a learner's raw result on one problem block.
type ScoreWriteRequest struct {
	UserID   uint    `json:"user_id" validate:"required"`
	CourseID string  `json:"course_id" validate:"required"`
	UsageKey string  `json:"usage_key" validate:"required"`
	Earned   float64 `json:"earned" validate:"min=0"`
	Possible float64 `json:"possible" validate:"min=0"`
}

// ScoreResponse is the serialized raw score row.
type ScoreResponse struct {
	UserID           uint       `json:"user_id"`
	CourseID         string     `json:"course_id"`
	UsageKey         string     `json:"usage_key"`
	Earned           float64    `json:"earned"`
	Possible         float64    `json:"possible"`
	FirstAttemptedAt *time.Time `json:"first_attempted_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewScoreResponse converts a model into a DTO.
func NewScoreResponse(model models.StudentScore) ScoreResponse {
	return ScoreResponse{
		UserID:           model.UserID,
		CourseID:         model.CourseID,
		UsageKey:         model.UsageKey,
		Earned:           model.RawEarned,
		Possible:         model.RawPossible,
		FirstAttemptedAt: model.FirstAttemptedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}
