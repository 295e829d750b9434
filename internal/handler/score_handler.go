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

// ScoreHandler wires the raw problem score routes. Scores are written by
// the courseware runtime, not by learners directly.
type ScoreHandler struct {
	scores    service.ScoreService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewScoreHandler constructs the handler.
func NewScoreHandler(scores service.ScoreService, validator *validator.Validate, logger zerolog.Logger) *ScoreHandler {
	return &ScoreHandler{
		scores:    scores,
		validator: validator,
		logger:    logger.With().Str("component", "score_handler").Logger(),
	}
}

// Register attaches score endpoints to the router group.
func (h *ScoreHandler) Register(router fiber.Router) {
	router.Post("", h.write)
	router.Delete("", h.delete)
}

func (h *ScoreHandler) write(c *fiber.Ctx) error {
	var payload dto.ScoreWriteRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	score, err := h.scores.SetScore(requestContext(c), payload.UserID, payload.CourseID, payload.UsageKey, payload.Earned, payload.Possible)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "score recorded", dto.NewScoreResponse(score))
}

func (h *ScoreHandler) delete(c *fiber.Ctx) error {
	userID, err := parseQueryUint(c, "user_id")
	if err != nil || userID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "user_id required")
	}
	courseID := c.Query("course_id")
	usageKey := c.Query("usage_key")
	if courseID == "" || usageKey == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "course_id and usage_key required")
	}

	if err := h.scores.DeleteScore(requestContext(c), userID, courseID, usageKey); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "score deleted", fiber.Map{
		"user_id":   userID,
		"usage_key": usageKey,
	})
}

func (h *ScoreHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrBlockNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "block not found in course")
	case errors.Is(err, service.ErrBlockNotScorable):
		return utils.SendError(c, fiber.StatusBadRequest, "block is not scorable")
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
