package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mirelo-edu/coursegate-api/internal/repository"
)

func newCompletionFixture(t *testing.T) CompletionService {
	t.Helper()

	db := testDB(t)
	view := testView(t)
	return NewCompletionService(
		repository.NewCompletionRepository(db),
		&fakeStructureProvider{view: view},
		testLogger(),
	)
}

func TestCompletionAveragesOverSubsectionLeaves(t *testing.T) {
	svc := newCompletionFixture(t)
	ctx := context.Background()
	courseID := testView(t).Course()

	// seq1 has two leaves; completing one of them fully is 50 percent.
	_, err := svc.SetCompletion(ctx, 7, courseID, "p1", 1.0)
	require.NoError(t, err)

	pct, err := svc.SubsectionCompletionPercentage(ctx, 7, "seq1")
	require.NoError(t, err)
	require.InDelta(t, 50.0, pct, 1e-9)

	_, err = svc.SetCompletion(ctx, 7, courseID, "p2", 0.5)
	require.NoError(t, err)

	pct, err = svc.SubsectionCompletionPercentage(ctx, 7, "seq1")
	require.NoError(t, err)
	require.InDelta(t, 75.0, pct, 1e-9)
}

func TestCompletionUpsertReplacesRow(t *testing.T) {
	svc := newCompletionFixture(t)
	ctx := context.Background()
	courseID := testView(t).Course()

	_, err := svc.SetCompletion(ctx, 7, courseID, "p3", 0.2)
	require.NoError(t, err)
	_, err = svc.SetCompletion(ctx, 7, courseID, "p3", 1.0)
	require.NoError(t, err)

	pct, err := svc.SubsectionCompletionPercentage(ctx, 7, "seq2")
	require.NoError(t, err)
	require.InDelta(t, 100.0, pct, 1e-9)
}

func TestCompletionRejectsOutOfRange(t *testing.T) {
	svc := newCompletionFixture(t)
	courseID := testView(t).Course()

	_, err := svc.SetCompletion(context.Background(), 7, courseID, "p1", 1.5)
	require.ErrorIs(t, err, ErrInvalidCompletion)
}

func TestCompletionRejectsUnknownBlock(t *testing.T) {
	svc := newCompletionFixture(t)
	courseID := testView(t).Course()

	_, err := svc.SetCompletion(context.Background(), 7, courseID, "ghost", 0.5)
	require.ErrorIs(t, err, ErrBlockNotFound)
}

func TestCompletionEmptySubsectionIsZero(t *testing.T) {
	svc := newCompletionFixture(t)

	pct, err := svc.SubsectionCompletionPercentage(context.Background(), 7, "seq1")
	require.NoError(t, err)
	require.Zero(t, pct)
}
