package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/service"
	"github.com/mirelo-edu/coursegate-api/internal/utils"
)

// UnlockHandler streams content unlock events to the learner over SSE.
type UnlockHandler struct {
	publisher service.UnlockPublisher
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewUnlockHandler constructs the handler.
func NewUnlockHandler(publisher service.UnlockPublisher, logger zerolog.Logger, keepAlive time.Duration) *UnlockHandler {
	return &UnlockHandler{
		publisher: publisher,
		logger:    logger.With().Str("component", "unlock_handler").Logger(),
		keepAlive: keepAlive,
	}
}

// Register binds the unlock stream route.
func (h *UnlockHandler) Register(router fiber.Router) {
	router.Get("/stream", h.stream)
}

func (h *UnlockHandler) stream(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(requestContext(c))
	stream, cleanup := h.publisher.Subscribe(userID)

	keepAliveInterval := h.keepAlive
	if keepAliveInterval <= 0 {
		keepAliveInterval = 30 * time.Second
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
		}()

		ticker := time.NewTicker(keepAliveInterval / 2)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-stream:
				if !ok {
					return
				}
				if err := writeUnlockEvent(w, event); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write unlock event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write unlock keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func writeUnlockEvent(w *bufio.Writer, event service.UnlockEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: unlock\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
