package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mirelo-edu/coursegate-api/internal/observability"
)

func newObservedApp() *fiber.App {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Use(Observability(zerolog.Nop()))
	app.Get("/api/v1/ping", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/api/v1/broken", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusInternalServerError)
	})
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestObservabilityCountsVersionedAPIRequests(t *testing.T) {
	app := newObservedApp()

	counter := observability.APIRequests().WithLabelValues(http.MethodGet, "/api/v1/ping", "200")
	before := testutil.ToFloat64(counter)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.InDelta(t, before+1, testutil.ToFloat64(counter), 1e-9)
}

func TestObservabilityCountsErrorResponses(t *testing.T) {
	app := newObservedApp()

	errors := observability.APIErrors().WithLabelValues(http.MethodGet, "/api/v1/broken", "500")
	before := testutil.ToFloat64(errors)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/broken", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	require.InDelta(t, before+1, testutil.ToFloat64(errors), 1e-9)
}

func TestObservabilitySkipsUnversionedPaths(t *testing.T) {
	app := newObservedApp()

	counter := observability.APIRequests().WithLabelValues(http.MethodGet, "/healthz", "200")
	before := testutil.ToFloat64(counter)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.InDelta(t, before, testutil.ToFloat64(counter), 1e-9)
}
