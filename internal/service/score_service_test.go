package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

type recordingListener struct {
	events []ScoreWrittenEvent
}

func (r *recordingListener) OnScoreWritten(ctx context.Context, event ScoreWrittenEvent) error {
	r.events = append(r.events, event)
	return nil
}

func TestSetScoreNotifiesListeners(t *testing.T) {
	db := testDB(t)
	view := testView(t)
	seedBlocks(t, db, view)

	dispatcher := NewScoreDispatcher(testLogger())
	listener := &recordingListener{}
	dispatcher.Register(listener)

	svc := NewScoreService(repository.NewScoreRepository(db), repository.NewBlockRepository(db), dispatcher, testLogger())

	stored, err := svc.SetScore(context.Background(), 7, view.Course().String(), "p1", 3, 5)
	require.NoError(t, err)
	require.Equal(t, 3.0, stored.RawEarned)
	require.NotNil(t, stored.FirstAttemptedAt)

	require.Len(t, listener.events, 1)
	require.Equal(t, structure.BlockID("p1"), listener.events[0].UsageKey)
	require.False(t, listener.events[0].Deleted)
}

func TestSetScoreClampsRawPair(t *testing.T) {
	db := testDB(t)
	view := testView(t)
	seedBlocks(t, db, view)

	svc := NewScoreService(repository.NewScoreRepository(db), repository.NewBlockRepository(db), nil, testLogger())

	stored, err := svc.SetScore(context.Background(), 7, view.Course().String(), "p1", 9, 5)
	require.NoError(t, err)
	require.Equal(t, 5.0, stored.RawEarned)

	stored, err = svc.SetScore(context.Background(), 7, view.Course().String(), "p1", -2, 5)
	require.NoError(t, err)
	require.Equal(t, 0.0, stored.RawEarned)
}

func TestSetScoreRejectsNonScorable(t *testing.T) {
	db := testDB(t)
	view := testView(t)
	seedBlocks(t, db, view)

	svc := NewScoreService(repository.NewScoreRepository(db), repository.NewBlockRepository(db), nil, testLogger())

	_, err := svc.SetScore(context.Background(), 7, view.Course().String(), "seq1", 1, 1)
	require.ErrorIs(t, err, ErrBlockNotScorable)

	_, err = svc.SetScore(context.Background(), 7, view.Course().String(), "nope", 1, 1)
	require.ErrorIs(t, err, ErrBlockNotFound)
}

func TestSetScoreFirstAttemptedWriteOnce(t *testing.T) {
	db := testDB(t)
	view := testView(t)
	seedBlocks(t, db, view)

	svc := NewScoreService(repository.NewScoreRepository(db), repository.NewBlockRepository(db), nil, testLogger())

	first, err := svc.SetScore(context.Background(), 7, view.Course().String(), "p1", 1, 5)
	require.NoError(t, err)

	second, err := svc.SetScore(context.Background(), 7, view.Course().String(), "p1", 4, 5)
	require.NoError(t, err)
	require.Equal(t, 4.0, second.RawEarned)
	require.True(t, second.FirstAttemptedAt.Equal(*first.FirstAttemptedAt))
}

func TestDeleteScoreNotifiesDeletion(t *testing.T) {
	db := testDB(t)
	view := testView(t)
	seedBlocks(t, db, view)

	dispatcher := NewScoreDispatcher(testLogger())
	listener := &recordingListener{}
	dispatcher.Register(listener)

	svc := NewScoreService(repository.NewScoreRepository(db), repository.NewBlockRepository(db), dispatcher, testLogger())

	_, err := svc.SetScore(context.Background(), 7, view.Course().String(), "p1", 3, 5)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteScore(context.Background(), 7, view.Course().String(), "p1"))

	require.Len(t, listener.events, 2)
	require.True(t, listener.events[1].Deleted)
}
