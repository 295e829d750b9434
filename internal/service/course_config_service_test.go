package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

func TestCourseConfigDefaultsWithoutRow(t *testing.T) {
	svc := NewCourseConfigService(repository.NewCourseConfigRepository(testDB(t)), &fakeStructureProvider{}, testLogger())

	cfg, err := svc.Get(context.Background(), structure.CourseID("course-v1:Demo+101+2026"))
	require.NoError(t, err)
	require.False(t, cfg.EnableSubsectionGating)
	require.True(t, cfg.PersistentGradesEnabled)
}

func TestCourseConfigSetInvalidatesStructure(t *testing.T) {
	views := &fakeStructureProvider{view: testView(t)}
	svc := NewCourseConfigService(repository.NewCourseConfigRepository(testDB(t)), views, testLogger())
	ctx := context.Background()
	courseID := structure.CourseID("course-v1:Demo+101+2026")

	cfg, err := svc.Set(ctx, courseID, models.CourseConfig{
		CourseID:                "ignored",
		EnableSubsectionGating:  true,
		PersistentGradesEnabled: true,
	})
	require.NoError(t, err)
	require.Equal(t, courseID.String(), cfg.CourseID)
	require.True(t, cfg.EnableSubsectionGating)
	require.Equal(t, 1, views.invalidated)

	stored, err := svc.Get(ctx, courseID)
	require.NoError(t, err)
	require.True(t, stored.EnableSubsectionGating)
	require.True(t, stored.PersistentGradesEnabled)
}
