package dto

import "github.com/mirelo-edu/coursegate-api/internal/models"

// RoleGrantRequest grants or revokes a course access role.
type RoleGrantRequest struct {
	UserID uint   `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=staff instructor admin"`
}

// RoleResponse is one course access role row.
type RoleResponse struct {
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
}

// NewRoleResponse converts a model into a DTO.
func NewRoleResponse(model models.CourseAccessRole) RoleResponse {
	return RoleResponse{
		UserID: model.UserID,
		Role:   model.Role,
	}
}
