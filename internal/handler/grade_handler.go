package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/dto"
	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/service"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
	"github.com/mirelo-edu/coursegate-api/internal/utils"
)

// GradeHandler wires the grade read and override routes.
type GradeHandler struct {
	configs     service.CourseConfigService
	views       service.StructureProvider
	roles       service.RoleProvider
	subsections service.SubsectionGradeService
	courses     service.CourseGradeService
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewGradeHandler constructs the handler.
func NewGradeHandler(configs service.CourseConfigService, views service.StructureProvider, roles service.RoleProvider, subsections service.SubsectionGradeService, courses service.CourseGradeService, validator *validator.Validate, logger zerolog.Logger) *GradeHandler {
	return &GradeHandler{
		configs:     configs,
		views:       views,
		roles:       roles,
		subsections: subsections,
		courses:     courses,
		validator:   validator,
		logger:      logger.With().Str("component", "grade_handler").Logger(),
	}
}

// Register attaches grade endpoints to the router group.
func (h *GradeHandler) Register(router fiber.Router) {
	router.Get("", h.courseGrade)
	router.Get("/subsections/:usageKey", h.subsectionGrade)
}

// RegisterAdmin attaches the override endpoint; callers guard it with the
// staff role middleware.
func (h *GradeHandler) RegisterAdmin(router fiber.Router) {
	router.Post("/overrides", h.applyOverride)
}

func (h *GradeHandler) courseGrade(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := requestContext(c)
	userID, ok, err := h.resolveTargetUser(c, courseID)
	if err != nil {
		return h.internalError(c, err)
	}
	if !ok {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	cfg, view, err := h.loadCourse(c, courseID)
	if err != nil {
		return h.internalError(c, err)
	}

	grade, err := h.courses.Read(ctx, userID, view, cfg)
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "course grade retrieved", dto.NewCourseGradeResponse(grade))
}

func (h *GradeHandler) subsectionGrade(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	usageKey, err := usageKeyParam(c, "usageKey")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := requestContext(c)
	userID, ok, err := h.resolveTargetUser(c, courseID)
	if err != nil {
		return h.internalError(c, err)
	}
	if !ok {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	cfg, view, err := h.loadCourse(c, courseID)
	if err != nil {
		return h.internalError(c, err)
	}
	if !view.Has(usageKey) {
		return utils.SendError(c, fiber.StatusNotFound, "subsection not found")
	}

	grade, err := h.subsections.Read(ctx, userID, view, usageKey, cfg)
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "subsection grade retrieved", dto.NewSubsectionGradeResponse(grade))
}

func (h *GradeHandler) applyOverride(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.GradeOverrideRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := requestContext(c)
	cfg, view, err := h.loadCourse(c, courseID)
	if err != nil {
		return h.internalError(c, err)
	}

	usageKey := structure.BlockID(payload.UsageKey)
	if !view.Has(usageKey) {
		return utils.SendError(c, fiber.StatusNotFound, "subsection not found")
	}

	override := models.SubsectionGradeOverride{
		EarnedAllOverride:      payload.EarnedAll,
		PossibleAllOverride:    payload.PossibleAll,
		EarnedGradedOverride:   payload.EarnedGraded,
		PossibleGradedOverride: payload.PossibleGraded,
		Reason:                 payload.Reason,
		CreatedBy:              userIDFromContext(c),
	}

	grade, err := h.subsections.ApplyOverride(ctx, payload.UserID, view, usageKey, cfg, override)
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "grade override applied", dto.NewSubsectionGradeResponse(grade))
}

// resolveTargetUser returns the user whose grades are requested. Learners
// may only read their own; staff may pass user_id.
func (h *GradeHandler) resolveTargetUser(c *fiber.Ctx, courseID structure.CourseID) (uint, bool, error) {
	requester := userIDFromContext(c)
	target, err := parseQueryUint(c, "user_id")
	if err != nil {
		return 0, false, nil
	}
	if target == 0 || target == requester {
		return requester, true, nil
	}

	staff, err := h.roles.IsStaff(requestContext(c), requester, courseID)
	if err != nil {
		return 0, false, err
	}
	if !staff && userRoleFromContext(c) != "admin" {
		return 0, false, nil
	}
	return target, true, nil
}

func (h *GradeHandler) loadCourse(c *fiber.Ctx, courseID structure.CourseID) (models.CourseConfig, *structure.View, error) {
	ctx := requestContext(c)
	cfg, err := h.configs.Get(ctx, courseID)
	if err != nil {
		return models.CourseConfig{}, nil, err
	}

	// Grades roll up over the full structure regardless of the
	// requester's visibility.
	view, err := h.views.GetCourseView(ctx, courseID, true)
	if err != nil {
		return models.CourseConfig{}, nil, err
	}
	return cfg, view, nil
}

func (h *GradeHandler) internalError(c *fiber.Ctx, err error) error {
	if errors.Is(err, structure.ErrMissingRoot) || errors.Is(err, structure.ErrUnknownBlock) {
		return utils.SendError(c, fiber.StatusNotFound, "course not found")
	}
	h.logger.Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
