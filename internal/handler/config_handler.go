package handler

import (
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/dto"
	"github.com/mirelo-edu/coursegate-api/internal/service"
	"github.com/mirelo-edu/coursegate-api/internal/utils"
)

// ConfigHandler wires the course configuration and grading policy routes.
type ConfigHandler struct {
	configs   service.CourseConfigService
	policies  service.GradingPolicyService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewConfigHandler constructs the handler.
func NewConfigHandler(configs service.CourseConfigService, policies service.GradingPolicyService, validator *validator.Validate, logger zerolog.Logger) *ConfigHandler {
	return &ConfigHandler{
		configs:   configs,
		policies:  policies,
		validator: validator,
		logger:    logger.With().Str("component", "config_handler").Logger(),
	}
}

// Register attaches the read endpoints to the router group.
func (h *ConfigHandler) Register(router fiber.Router) {
	router.Get("/config", h.getConfig)
	router.Get("/grading-policy", h.getPolicy)
}

// RegisterAdmin attaches the write endpoints; callers guard them with the
// staff role middleware.
func (h *ConfigHandler) RegisterAdmin(router fiber.Router) {
	router.Put("/config", h.setConfig)
	router.Put("/grading-policy", h.setPolicy)
}

func (h *ConfigHandler) getConfig(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	cfg, err := h.configs.Get(requestContext(c), courseID)
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "course configuration retrieved", dto.NewCourseConfigResponse(cfg))
}

func (h *ConfigHandler) setConfig(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.CourseConfigRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	ctx := requestContext(c)
	cfg, err := h.configs.Get(ctx, courseID)
	if err != nil {
		return h.internalError(c, err)
	}

	if payload.EnableSubsectionGating != nil {
		cfg.EnableSubsectionGating = *payload.EnableSubsectionGating
	}
	if payload.AssumeZeroIfAbsent != nil {
		cfg.AssumeZeroIfAbsent = *payload.AssumeZeroIfAbsent
	}
	if payload.PersistentGradesEnabled != nil {
		cfg.PersistentGradesEnabled = *payload.PersistentGradesEnabled
	}

	updated, err := h.configs.Set(ctx, courseID, cfg)
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "course configuration updated", dto.NewCourseConfigResponse(updated))
}

func (h *ConfigHandler) getPolicy(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	document, err := h.policies.Document(requestContext(c), courseID.String())
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "grading policy retrieved", dto.GradingPolicyResponse{
		CourseID: courseID.String(),
		Document: document,
	})
}

func (h *ConfigHandler) setPolicy(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.GradingPolicyRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	document, err := json.Marshal(payload.Document)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid policy document")
	}

	if _, err := h.policies.Set(requestContext(c), courseID.String(), document); err != nil {
		if errors.Is(err, service.ErrInvalidPolicy) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		return h.internalError(c, err)
	}

	stored, err := h.policies.Document(requestContext(c), courseID.String())
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "grading policy updated", dto.GradingPolicyResponse{
		CourseID: courseID.String(),
		Document: stored,
	})
}

func (h *ConfigHandler) internalError(c *fiber.Ctx, err error) error {
	h.logger.Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
