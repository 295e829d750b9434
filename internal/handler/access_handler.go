package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/dto"
	"github.com/mirelo-edu/coursegate-api/internal/service"
	"github.com/mirelo-edu/coursegate-api/internal/utils"
)

// AccessHandler answers whether the learner can load a block.
type AccessHandler struct {
	access service.AccessService
	logger zerolog.Logger
}

// NewAccessHandler constructs the handler.
func NewAccessHandler(access service.AccessService, logger zerolog.Logger) *AccessHandler {
	return &AccessHandler{
		access: access,
		logger: logger.With().Str("component", "access_handler").Logger(),
	}
}

// Register attaches the access endpoint to the router group.
func (h *AccessHandler) Register(router fiber.Router) {
	router.Get("/blocks/:usageKey/access", h.canLoad)
}

func (h *AccessHandler) canLoad(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	usageKey, err := usageKeyParam(c, "usageKey")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	result, err := h.access.CanLoad(requestContext(c), userID, courseID, usageKey)
	if err != nil {
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "access evaluated", dto.NewAccessResponse(usageKey.String(), result))
}
