package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mirelo-edu/coursegate-api/internal/config"
	"github.com/mirelo-edu/coursegate-api/internal/handler"
	"github.com/mirelo-edu/coursegate-api/internal/middleware"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ScoreHandler    *handler.ScoreHandler
	GradeHandler    *handler.GradeHandler
	GatingHandler   *handler.GatingHandler
	AccessHandler   *handler.AccessHandler
	ProgressHandler *handler.ProgressHandler
	ConfigHandler   *handler.ConfigHandler
	RoleHandler     *handler.RoleHandler
	UnlockHandler   *handler.UnlockHandler
	HealthHandler   fiber.Handler
	JWTMiddleware   fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	healthHandler := deps.HealthHandler
	if healthHandler == nil {
		healthHandler = handler.HealthCheck(cfg, nil, nil)
	}
	api.Get("/health", healthHandler)

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	staffOnly := middleware.RequireStaff()

	// Score ingestion, written by the courseware runtime.
	if deps.ScoreHandler != nil {
		scores := api.Group("/scores", jwtMiddleware, staffOnly, middleware.RateLimit("scores", 120, time.Minute))
		deps.ScoreHandler.Register(scores)
	}

	// Per-course surfaces.
	course := api.Group("/courses/:courseID", jwtMiddleware)

	if deps.GradeHandler != nil {
		grades := course.Group("/grades")
		deps.GradeHandler.Register(grades)
		deps.GradeHandler.RegisterAdmin(grades.Group("", staffOnly))
	}

	if deps.GatingHandler != nil {
		gating := course.Group("/gating")
		deps.GatingHandler.Register(gating)
		deps.GatingHandler.RegisterAdmin(gating.Group("", staffOnly))
	}

	if deps.AccessHandler != nil {
		deps.AccessHandler.Register(course)
	}

	if deps.ProgressHandler != nil {
		deps.ProgressHandler.Register(course)
	}

	if deps.ConfigHandler != nil {
		deps.ConfigHandler.Register(course)
		deps.ConfigHandler.RegisterAdmin(course.Group("", staffOnly))
	}

	if deps.RoleHandler != nil {
		deps.RoleHandler.RegisterAdmin(course.Group("", staffOnly))
	}

	// Live unlock notifications.
	if deps.UnlockHandler != nil {
		unlocks := api.Group("/unlocks", jwtMiddleware)
		deps.UnlockHandler.Register(unlocks)
	}
}
