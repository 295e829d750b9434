package dto

import "github.com/mirelo-edu/coursegate-api/internal/service"

// AccessResponse reports the access decision for one block.
type AccessResponse struct {
	UsageKey    string `json:"usage_key"`
	Decision    string `json:"decision"`
	Requirement string `json:"requirement,omitempty"`
}

// NewAccessResponse converts an access result into a DTO.
func NewAccessResponse(usageKey string, result service.AccessResult) AccessResponse {
	return AccessResponse{
		UsageKey:    usageKey,
		Decision:    string(result.Decision),
		Requirement: result.Requirement,
	}
}
