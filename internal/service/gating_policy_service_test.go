package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

func newGatingPolicyFixture(t *testing.T) (*gorm.DB, *structure.View, GatingPolicyService, *fakeStructureProvider) {
	t.Helper()

	db := testDB(t)
	view := testView(t)
	seedBlocks(t, db, view)

	views := &fakeStructureProvider{view: view}
	svc := NewGatingPolicyService(repository.NewMilestoneRepository(db), repository.NewBlockRepository(db), views, testLogger())
	return db, view, svc, views
}

func TestAddPrerequisiteIsIdempotent(t *testing.T) {
	db, view, svc, views := newGatingPolicyFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.AddPrerequisite(ctx, view.Course(), "seq1"))
	require.NoError(t, svc.AddPrerequisite(ctx, view.Course(), "seq1"))

	var milestones int64
	require.NoError(t, db.Model(&models.Milestone{}).Count(&milestones).Error)
	require.EqualValues(t, 1, milestones)

	var links int64
	require.NoError(t, db.Model(&models.CourseContentMilestone{}).
		Where("relationship = ?", models.MilestoneRelationshipFulfills).
		Count(&links).Error)
	require.EqualValues(t, 1, links)
	require.Positive(t, views.invalidated)

	prereqs, err := svc.ListPrerequisites(ctx, view.Course())
	require.NoError(t, err)
	require.Len(t, prereqs, 1)
	require.Equal(t, structure.BlockID("seq1"), prereqs[0].UsageKey)
	require.Equal(t, "Homework 1", prereqs[0].DisplayName)
	require.Equal(t, "seq1.gating", prereqs[0].Namespace)
}

func TestSetRequiredContentRoundTrip(t *testing.T) {
	_, view, svc, _ := newGatingPolicyFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.AddPrerequisite(ctx, view.Course(), "seq1"))
	require.NoError(t, svc.SetRequiredContent(ctx, view.Course(), "seq2", "seq1", intPtr(50), intPtr(0)))

	required, err := svc.GetRequiredContent(ctx, view.Course(), "seq2")
	require.NoError(t, err)
	require.NotNil(t, required)
	require.Equal(t, structure.BlockID("seq1"), required.PrerequisiteKey)
	require.Equal(t, 50, *required.MinScore)
	require.Equal(t, 0, *required.MinCompletion)

	// Overwriting the edge replaces the thresholds.
	require.NoError(t, svc.SetRequiredContent(ctx, view.Course(), "seq2", "seq1", intPtr(80), nil))
	required, err = svc.GetRequiredContent(ctx, view.Course(), "seq2")
	require.NoError(t, err)
	require.Equal(t, 80, *required.MinScore)
	require.Nil(t, required.MinCompletion)
}

func TestSetRequiredContentEmptyPrereqClearsGate(t *testing.T) {
	_, view, svc, _ := newGatingPolicyFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.AddPrerequisite(ctx, view.Course(), "seq1"))
	require.NoError(t, svc.SetRequiredContent(ctx, view.Course(), "seq2", "seq1", intPtr(50), nil))
	require.NoError(t, svc.SetRequiredContent(ctx, view.Course(), "seq2", "", nil, nil))

	required, err := svc.GetRequiredContent(ctx, view.Course(), "seq2")
	require.NoError(t, err)
	require.Nil(t, required)
}

func TestSetRequiredContentValidation(t *testing.T) {
	_, view, svc, _ := newGatingPolicyFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.AddPrerequisite(ctx, view.Course(), "seq1"))

	// Threshold outside [0, 100].
	err := svc.SetRequiredContent(ctx, view.Course(), "seq2", "seq1", intPtr(150), nil)
	require.ErrorIs(t, err, ErrGatingValidation)

	// Unknown gated block.
	err = svc.SetRequiredContent(ctx, view.Course(), "missing", "seq1", intPtr(50), nil)
	require.ErrorIs(t, err, ErrGatingValidation)

	// A problem is not a subsection.
	err = svc.SetRequiredContent(ctx, view.Course(), "p1", "seq1", intPtr(50), nil)
	require.ErrorIs(t, err, ErrGatingValidation)

	// Self-gating.
	err = svc.SetRequiredContent(ctx, view.Course(), "seq1", "seq1", intPtr(50), nil)
	require.ErrorIs(t, err, ErrGatingValidation)

	// Unregistered prerequisite.
	err = svc.SetRequiredContent(ctx, view.Course(), "seq2", "seq3", intPtr(50), nil)
	require.ErrorIs(t, err, ErrGatingValidation)

	// A rejected write leaves the store unchanged.
	required, err := svc.GetRequiredContent(ctx, view.Course(), "seq2")
	require.NoError(t, err)
	require.Nil(t, required)
}

func TestSetRequiredContentRejectsCycle(t *testing.T) {
	_, view, svc, _ := newGatingPolicyFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.AddPrerequisite(ctx, view.Course(), "seq1"))
	require.NoError(t, svc.AddPrerequisite(ctx, view.Course(), "seq2"))
	require.NoError(t, svc.SetRequiredContent(ctx, view.Course(), "seq2", "seq1", intPtr(50), nil))

	// seq1 gated on seq2 would close the loop.
	err := svc.SetRequiredContent(ctx, view.Course(), "seq1", "seq2", intPtr(50), nil)
	require.ErrorIs(t, err, ErrGatingValidation)
}

func TestRemovePrerequisiteCascades(t *testing.T) {
	db, view, svc, _ := newGatingPolicyFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.AddPrerequisite(ctx, view.Course(), "seq1"))
	require.NoError(t, svc.SetRequiredContent(ctx, view.Course(), "seq2", "seq1", intPtr(50), nil))

	require.NoError(t, svc.RemovePrerequisite(ctx, view.Course(), "seq1"))

	var milestones int64
	require.NoError(t, db.Model(&models.Milestone{}).Count(&milestones).Error)
	require.Zero(t, milestones)

	var links int64
	require.NoError(t, db.Model(&models.CourseContentMilestone{}).Count(&links).Error)
	require.Zero(t, links)

	// Removing again is a no-op.
	require.NoError(t, svc.RemovePrerequisite(ctx, view.Course(), "seq1"))

	ok, err := svc.IsPrerequisite(ctx, view.Course(), "seq1")
	require.NoError(t, err)
	require.False(t, ok)
}
