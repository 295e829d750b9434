package handler

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/dto"
	"github.com/mirelo-edu/coursegate-api/internal/service"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
	"github.com/mirelo-edu/coursegate-api/internal/utils"
)

// ProgressHandler serves the learner's course outline with completion and
// gating badges, and records block completion.
type ProgressHandler struct {
	progress    service.ProgressSummaryService
	completions service.CompletionService
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewProgressHandler constructs the handler.
func NewProgressHandler(progress service.ProgressSummaryService, completions service.CompletionService, validator *validator.Validate, logger zerolog.Logger) *ProgressHandler {
	return &ProgressHandler{
		progress:    progress,
		completions: completions,
		validator:   validator,
		logger:      logger.With().Str("component", "progress_handler").Logger(),
	}
}

// Register attaches progress endpoints to the router group.
func (h *ProgressHandler) Register(router fiber.Router) {
	router.Get("/progress", h.summary)
	router.Post("/completions", h.setCompletion)
}

func (h *ProgressHandler) summary(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	summary, err := h.progress.Summary(requestContext(c), userID, courseID)
	if err != nil {
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "progress retrieved", progressResponse(summary))
}

func (h *ProgressHandler) setCompletion(c *fiber.Ctx) error {
	courseID, err := courseIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.CompletionWriteRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	row, err := h.completions.SetCompletion(requestContext(c), userID, courseID, structure.BlockID(payload.UsageKey), payload.Completion)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCompletion):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrBlockNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "block not found in course")
		default:
			h.logger.Error().Err(err).Msg("internal server error")
			return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
		}
	}

	return utils.SendSuccess(c, "completion recorded", dto.NewCompletionResponse(row))
}

func progressResponse(summary service.CourseProgressSummary) dto.CourseProgressResponse {
	chapters := make([]dto.ChapterProgressRow, 0, len(summary.Chapters))
	for _, chapter := range summary.Chapters {
		subsections := make([]dto.SubsectionProgressRow, 0, len(chapter.Subsections))
		for _, subsection := range chapter.Subsections {
			subsections = append(subsections, dto.SubsectionProgressRow{
				UsageKey:    subsection.UsageKey.String(),
				DisplayName: subsection.DisplayName,
				Progress:    formatProgress(subsection.Attempted, subsection.Total),
				Percent:     progressPercent(subsection.Attempted, subsection.Total),
				State:       string(subsection.State),
				Access:      string(subsection.Access.Decision),
				Requirement: subsection.Access.Requirement,
			})
		}
		chapters = append(chapters, dto.ChapterProgressRow{
			UsageKey:    chapter.UsageKey.String(),
			DisplayName: chapter.DisplayName,
			Progress:    formatProgress(chapter.Attempted, chapter.Total),
			Percent:     progressPercent(chapter.Attempted, chapter.Total),
			State:       string(chapter.State),
			Subsections: subsections,
		})
	}

	return dto.CourseProgressResponse{
		CourseID:  summary.CourseID.String(),
		Progress:  formatProgress(summary.Attempted, summary.Total),
		Percent:   summary.Percent,
		State:     string(summary.State),
		Chapters:  chapters,
		UpdatedAt: time.Now().UTC(),
	}
}

func formatProgress(attempted, total float64) string {
	return fmt.Sprintf("%g/%g", attempted, total)
}

func progressPercent(attempted, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * attempted / total
}
