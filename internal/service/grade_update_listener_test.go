package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

func newListenerFixture(t *testing.T) (*gorm.DB, *structure.View, *GradeUpdateListener) {
	t.Helper()

	db := testDB(t)
	view := testView(t)
	reader := NewScoreReader(repository.NewScoreRepository(db), nil, testLogger())
	grades := repository.NewGradeRepository(db)
	subsections := NewSubsectionGradeService(reader, grades, testLogger())
	courses := NewCourseGradeService(subsections, &fakePolicyService{policy: homeworkPolicy()}, grades, testLogger())
	listener := NewGradeUpdateListener(
		repository.NewCourseConfigRepository(db),
		&fakeStructureProvider{view: view},
		subsections, courses, testLogger(),
	)
	return db, view, listener
}

func TestListenerRollsUpSubsectionAndCourse(t *testing.T) {
	db, view, listener := newListenerFixture(t)
	ctx := context.Background()

	attempted := time.Now().UTC()
	seedScore(t, db, 7, "p1", 4, 5, &attempted)
	seedScore(t, db, 7, "p2", 4, 4, &attempted)

	err := listener.OnScoreWritten(ctx, ScoreWrittenEvent{
		UserID: 7, CourseID: view.Course(), UsageKey: "p1", WrittenAt: attempted,
	})
	require.NoError(t, err)

	grades := repository.NewGradeRepository(db)
	sub, err := grades.GetSubsection(ctx, 7, "seq1")
	require.NoError(t, err)
	require.InDelta(t, 12.0, sub.EarnedGraded, 1e-9)
	require.InDelta(t, 14.0, sub.PossibleGraded, 1e-9)

	course, err := grades.GetCourseGrade(ctx, 7, view.Course().String())
	require.NoError(t, err)
	require.Greater(t, course.Percent, 0.0)
}

func TestListenerIgnoresBlocksOutsideSubsections(t *testing.T) {
	db, view, listener := newListenerFixture(t)
	ctx := context.Background()

	err := listener.OnScoreWritten(ctx, ScoreWrittenEvent{
		UserID: 7, CourseID: view.Course(), UsageKey: "no-such-block",
	})
	require.NoError(t, err)

	_, err = repository.NewGradeRepository(db).GetCourseGrade(ctx, 7, view.Course().String())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListenerDeletesStaleRowOnScoreDelete(t *testing.T) {
	db, view, listener := newListenerFixture(t)
	ctx := context.Background()

	attempted := time.Now().UTC()
	seedScore(t, db, 7, "p3", 8, 10, &attempted)
	require.NoError(t, listener.OnScoreWritten(ctx, ScoreWrittenEvent{
		UserID: 7, CourseID: view.Course(), UsageKey: "p3", WrittenAt: attempted,
	}))

	grades := repository.NewGradeRepository(db)
	_, err := grades.GetSubsection(ctx, 7, "seq2")
	require.NoError(t, err)

	require.NoError(t, db.Where("user_id = ? AND usage_key = ?", 7, "p3").
		Delete(&models.StudentScore{}).Error)
	require.NoError(t, listener.OnScoreWritten(ctx, ScoreWrittenEvent{
		UserID: 7, CourseID: view.Course(), UsageKey: "p3", Deleted: true,
	}))

	_, err = grades.GetSubsection(ctx, 7, "seq2")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
