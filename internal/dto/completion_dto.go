package dto

import (
	"time"

	"github.com/mirelo-edu/coursegate-api/internal/models"
)

// CompletionWriteRequest records how far the learner got through a block.
type CompletionWriteRequest struct {
	UsageKey   string  `json:"usage_key" validate:"required"`
	Completion float64 `json:"completion" validate:"min=0,max=1"`
}

// CompletionResponse is the stored completion row.
type CompletionResponse struct {
	UsageKey      string    `json:"usage_key"`
	SubsectionKey string    `json:"subsection_key"`
	Completion    float64   `json:"completion"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewCompletionResponse converts a model into a DTO.
func NewCompletionResponse(model models.BlockCompletion) CompletionResponse {
	return CompletionResponse{
		UsageKey:      model.UsageKey,
		SubsectionKey: model.SubsectionKey,
		Completion:    model.Completion,
		UpdatedAt:     model.UpdatedAt,
	}
}
