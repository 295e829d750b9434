package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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
	"github.com/mirelo-edu/coursegate-api/internal/service"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

type mockGatingService struct {
	prerequisites []service.Prerequisite
	required      *service.RequiredContent
	setErr        error

	lastGatedKey  structure.BlockID
	lastPrereqKey structure.BlockID
}

func (m *mockGatingService) AddPrerequisite(_ context.Context, _ structure.CourseID, _ structure.BlockID) error {
	return nil
}

func (m *mockGatingService) RemovePrerequisite(_ context.Context, _ structure.CourseID, _ structure.BlockID) error {
	return nil
}

func (m *mockGatingService) SetRequiredContent(_ context.Context, _ structure.CourseID, gatedKey, prereqKey structure.BlockID, _, _ *int) error {
	m.lastGatedKey = gatedKey
	m.lastPrereqKey = prereqKey
	return m.setErr
}

func (m *mockGatingService) GetRequiredContent(_ context.Context, _ structure.CourseID, _ structure.BlockID) (*service.RequiredContent, error) {
	return m.required, nil
}

func (m *mockGatingService) IsPrerequisite(_ context.Context, _ structure.CourseID, _ structure.BlockID) (bool, error) {
	return len(m.prerequisites) > 0, nil
}

func (m *mockGatingService) ListPrerequisites(_ context.Context, _ structure.CourseID) ([]service.Prerequisite, error) {
	return m.prerequisites, nil
}

type mockLedgerService struct {
	unmet []service.UnmetRequirement
}

func (m *mockLedgerService) Fulfill(_ context.Context, _ uint, _ structure.BlockID) error {
	return nil
}

func (m *mockLedgerService) HasFulfilled(_ context.Context, _ uint, _ structure.BlockID) (bool, error) {
	return false, nil
}

func (m *mockLedgerService) UnmetRequirements(_ context.Context, _ uint, _ structure.CourseID) ([]service.UnmetRequirement, error) {
	return m.unmet, nil
}

func newGatingApp(gating service.GatingPolicyService, ledger service.MilestoneLedgerService) *fiber.App {
	app := fiber.New()
	validate := validator.New(validator.WithRequiredStructEnabled())
	group := app.Group("/api/v1/courses/:courseID/gating", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(42))
		return c.Next()
	})
	h := handler.NewGatingHandler(gating, ledger, validate, zerolog.New(io.Discard))
	h.Register(group)
	h.RegisterAdmin(group)
	return app
}

const gatingBase = "/api/v1/courses/course-v1%3ADemo%2B101%2B2026/gating"

func TestGatingHandlerListsPrerequisites(t *testing.T) {
	gating := &mockGatingService{prerequisites: []service.Prerequisite{
		{UsageKey: "seq1", DisplayName: "Homework 1", Namespace: "seq1.gating"},
	}}
	app := newGatingApp(gating, &mockLedgerService{})

	req := httptest.NewRequest(http.MethodGet, gatingBase+"/prerequisites", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Data []dto.PrerequisiteResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Len(t, response.Data, 1)
	require.Equal(t, "seq1.gating", response.Data[0].Namespace)
}

func TestGatingHandlerSetsRequiredContent(t *testing.T) {
	gating := &mockGatingService{}
	app := newGatingApp(gating, &mockLedgerService{})

	prereq := "seq1"
	minScore := 50
	body, err := json.Marshal(dto.RequiredContentRequest{
		GatedUsageKey:  "seq2",
		PrereqUsageKey: &prereq,
		MinScore:       &minScore,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, gatingBase+"/required", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, structure.BlockID("seq2"), gating.lastGatedKey)
	require.Equal(t, structure.BlockID("seq1"), gating.lastPrereqKey)
}

func TestGatingHandlerMapsValidationErrors(t *testing.T) {
	gating := &mockGatingService{
		setErr: fmt.Errorf("%w: a subsection cannot gate itself", service.ErrGatingValidation),
	}
	app := newGatingApp(gating, &mockLedgerService{})

	body, err := json.Marshal(dto.RequiredContentRequest{GatedUsageKey: "seq2"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, gatingBase+"/required", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGatingHandlerRejectsOutOfRangeThreshold(t *testing.T) {
	gating := &mockGatingService{}
	app := newGatingApp(gating, &mockLedgerService{})

	minScore := 150
	body, err := json.Marshal(dto.RequiredContentRequest{
		GatedUsageKey: "seq2",
		MinScore:      &minScore,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, gatingBase+"/required", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Empty(t, gating.lastGatedKey)
}

func TestGatingHandlerListsUnmetRequirements(t *testing.T) {
	minScore := 50
	ledger := &mockLedgerService{unmet: []service.UnmetRequirement{
		{GatedKey: "seq2", PrerequisiteKey: "seq1", MinScore: &minScore},
	}}
	app := newGatingApp(&mockGatingService{}, ledger)

	req := httptest.NewRequest(http.MethodGet, gatingBase+"/unmet", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Data []dto.UnmetRequirementResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Len(t, response.Data, 1)
	require.Equal(t, "seq2", response.Data[0].UsageKey)
}
