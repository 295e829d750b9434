package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/dto"
	"github.com/mirelo-edu/coursegate-api/internal/service"
	"github.com/mirelo-edu/coursegate-api/internal/utils"
)

// RoleHandler wires course access role administration.
type RoleHandler struct {
	roles     service.RoleService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRoleHandler constructs the handler.
func NewRoleHandler(roles service.RoleService, validator *validator.Validate, logger zerolog.Logger) *RoleHandler {
	return &RoleHandler{
		roles:     roles,
		validator: validator,
		logger:    logger.With().Str("component", "role_handler").Logger(),
	}
}

// RegisterAdmin attaches the role endpoints; callers guard them with the
// staff role middleware.
func (h *RoleHandler) RegisterAdmin(router fiber.Router) {
	router.Get("/roles", h.list)
	router.Post("/roles", h.grant)
	router.Delete("/roles", h.revoke)
}

func (h *RoleHandler) list(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	roles, err := h.roles.ListCourseRoles(requestContext(c), courseID)
	if err != nil {
		return h.internalError(c, err)
	}

	responses := make([]dto.RoleResponse, 0, len(roles))
	for _, role := range roles {
		responses = append(responses, dto.NewRoleResponse(role))
	}

	return utils.SendSuccess(c, "course roles retrieved", responses)
}

func (h *RoleHandler) grant(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.RoleGrantRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.roles.Grant(requestContext(c), payload.UserID, courseID, payload.Role); err != nil {
		if errors.Is(err, service.ErrInvalidRole) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "course role granted", dto.RoleResponse{
		UserID: payload.UserID,
		Role:   payload.Role,
	})
}

func (h *RoleHandler) revoke(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.RoleGrantRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.roles.Revoke(requestContext(c), payload.UserID, courseID, payload.Role); err != nil {
		if errors.Is(err, service.ErrInvalidRole) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "course role revoked", dto.RoleResponse{
		UserID: payload.UserID,
		Role:   payload.Role,
	})
}

func (h *RoleHandler) internalError(c *fiber.Ctx, err error) error {
	h.logger.Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
