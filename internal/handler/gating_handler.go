package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/dto"
	"github.com/mirelo-edu/coursegate-api/internal/service"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
	"github.com/mirelo-edu/coursegate-api/internal/utils"
)

// GatingHandler wires the gating policy and fulfillment routes.
type GatingHandler struct {
	gating    service.GatingPolicyService
	ledger    service.MilestoneLedgerService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGatingHandler constructs the handler.
func NewGatingHandler(gating service.GatingPolicyService, ledger service.MilestoneLedgerService, validator *validator.Validate, logger zerolog.Logger) *GatingHandler {
	return &GatingHandler{
		gating:    gating,
		ledger:    ledger,
		validator: validator,
		logger:    logger.With().Str("component", "gating_handler").Logger(),
	}
}

// Register attaches the read endpoints to the router group.
func (h *GatingHandler) Register(router fiber.Router) {
	router.Get("/prerequisites", h.listPrerequisites)
	router.Get("/required/:usageKey", h.getRequiredContent)
	router.Get("/unmet", h.unmetRequirements)
}

// RegisterAdmin attaches the authoring endpoints; callers guard them with
// the staff role middleware.
func (h *GatingHandler) RegisterAdmin(router fiber.Router) {
	router.Post("/prerequisites", h.addPrerequisite)
	router.Delete("/prerequisites/:usageKey", h.removePrerequisite)
	router.Put("/required", h.setRequiredContent)
}

func (h *GatingHandler) listPrerequisites(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	prerequisites, err := h.gating.ListPrerequisites(requestContext(c), courseID)
	if err != nil {
		return h.handleError(c, err)
	}

	responses := make([]dto.PrerequisiteResponse, 0, len(prerequisites))
	for _, prereq := range prerequisites {
		responses = append(responses, dto.PrerequisiteResponse{
			UsageKey:    prereq.UsageKey.String(),
			DisplayName: prereq.DisplayName,
			Namespace:   prereq.Namespace,
		})
	}

	return utils.SendSuccess(c, "prerequisites retrieved", responses)
}

func (h *GatingHandler) addPrerequisite(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.PrerequisiteCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.gating.AddPrerequisite(requestContext(c), courseID, structure.BlockID(payload.UsageKey)); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "prerequisite registered", fiber.Map{
		"usage_key": payload.UsageKey,
	})
}

func (h *GatingHandler) removePrerequisite(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	usageKey, err := usageKeyParam(c, "usageKey")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.gating.RemovePrerequisite(requestContext(c), courseID, usageKey); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "prerequisite removed", fiber.Map{
		"usage_key": usageKey.String(),
	})
}

func (h *GatingHandler) setRequiredContent(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.RequiredContentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var prereqKey structure.BlockID
	if payload.PrereqUsageKey != nil {
		prereqKey = structure.BlockID(*payload.PrereqUsageKey)
	}

	err = h.gating.SetRequiredContent(requestContext(c), courseID, structure.BlockID(payload.GatedUsageKey), prereqKey, payload.MinScore, payload.MinCompletion)
	if err != nil {
		return h.handleError(c, err)
	}

	return h.respondRequiredContent(c, courseID, structure.BlockID(payload.GatedUsageKey))
}

func (h *GatingHandler) getRequiredContent(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	usageKey, err := usageKeyParam(c, "usageKey")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	return h.respondRequiredContent(c, courseID, usageKey)
}

func (h *GatingHandler) respondRequiredContent(c *fiber.Ctx, courseID structure.CourseID, gatedKey structure.BlockID) error {
	required, err := h.gating.GetRequiredContent(requestContext(c), courseID, gatedKey)
	if err != nil {
		return h.handleError(c, err)
	}

	response := dto.RequiredContentResponse{GatedUsageKey: gatedKey.String()}
	if required != nil {
		response.PrereqUsageKey = required.PrerequisiteKey.String()
		response.MinScore = required.MinScore
		response.MinCompletion = required.MinCompletion
	}

	return utils.SendSuccess(c, "required content retrieved", response)
}

func (h *GatingHandler) unmetRequirements(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	unmet, err := h.ledger.UnmetRequirements(requestContext(c), userID, courseID)
	if err != nil {
		return h.handleError(c, err)
	}

	responses := make([]dto.UnmetRequirementResponse, 0, len(unmet))
	for _, requirement := range unmet {
		responses = append(responses, dto.UnmetRequirementResponse{
			UsageKey:    requirement.GatedKey.String(),
			Requirement: describeUnmet(requirement),
		})
	}

	return utils.SendSuccess(c, "unmet requirements retrieved", responses)
}

func describeUnmet(requirement service.UnmetRequirement) string {
	switch {
	case requirement.MinScore != nil && requirement.MinCompletion != nil:
		return "prerequisite score and completion thresholds not met"
	case requirement.MinCompletion != nil:
		return "prerequisite completion threshold not met"
	default:
		return "prerequisite score threshold not met"
	}
}

func (h *GatingHandler) handleError(c *fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrGatingValidation) {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	h.logger.Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
