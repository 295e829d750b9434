package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mirelo-edu/coursegate-api/internal/dto"
	"github.com/mirelo-edu/coursegate-api/internal/handler"
	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/service"
)

type mockScoreService struct {
	score models.StudentScore
	err   error

	lastUserID uint
	deleted    bool
}

func (m *mockScoreService) SetScore(_ context.Context, userID uint, courseID, usageKey string, earned, possible float64) (models.StudentScore, error) {
	m.lastUserID = userID
	if m.err != nil {
		return models.StudentScore{}, m.err
	}
	return m.score, nil
}

func (m *mockScoreService) DeleteScore(_ context.Context, userID uint, courseID, usageKey string) error {
	m.deleted = true
	return m.err
}

func newScoreApp(svc service.ScoreService) *fiber.App {
	app := fiber.New()
	validate := validator.New(validator.WithRequiredStructEnabled())
	handler.NewScoreHandler(svc, validate, zerolog.New(io.Discard)).Register(app.Group("/api/v1/scores"))
	return app
}

func postScore(t *testing.T, app *fiber.App, payload dto.ScoreWriteRequest) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scores", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestScoreHandlerRecordsScore(t *testing.T) {
	svc := &mockScoreService{score: models.StudentScore{
		UserID: 7, CourseID: "course-v1:Demo+101+2026", UsageKey: "p1",
		RawEarned: 3, RawPossible: 5,
	}}
	app := newScoreApp(svc)

	resp := postScore(t, app, dto.ScoreWriteRequest{
		UserID: 7, CourseID: "course-v1:Demo+101+2026", UsageKey: "p1",
		Earned: 3, Possible: 5,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Success bool              `json:"success"`
		Data    dto.ScoreResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)

	require.True(t, response.Success)
	require.Equal(t, uint(7), svc.lastUserID)
	require.Equal(t, 3.0, response.Data.Earned)
}

func TestScoreHandlerRejectsMissingFields(t *testing.T) {
	svc := &mockScoreService{}
	app := newScoreApp(svc)

	resp := postScore(t, app, dto.ScoreWriteRequest{Earned: 3, Possible: 5})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Zero(t, svc.lastUserID)
}

func TestScoreHandlerMapsServiceErrors(t *testing.T) {
	cases := map[error]int{
		service.ErrBlockNotFound:    fiber.StatusNotFound,
		service.ErrBlockNotScorable: fiber.StatusBadRequest,
	}
	for serviceErr, status := range cases {
		app := newScoreApp(&mockScoreService{err: serviceErr})
		resp := postScore(t, app, dto.ScoreWriteRequest{
			UserID: 7, CourseID: "course-v1:Demo+101+2026", UsageKey: "ghost",
			Earned: 1, Possible: 2,
		})
		require.Equal(t, status, resp.StatusCode)
	}
}

func TestScoreHandlerDeleteRequiresIdentifiers(t *testing.T) {
	svc := &mockScoreService{}
	app := newScoreApp(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/scores?user_id=7", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.False(t, svc.deleted)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/scores?user_id=7&course_id=c&usage_key=p1", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, svc.deleted)
}
