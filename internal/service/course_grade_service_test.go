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

type fakePolicyService struct {
	policy models.GradingPolicy
}

func (f *fakePolicyService) Get(ctx context.Context, courseID string) (models.GradingPolicy, error) {
	return f.policy, nil
}

func (f *fakePolicyService) Set(ctx context.Context, courseID string, document []byte) (models.GradingPolicy, error) {
	return f.policy, nil
}

func (f *fakePolicyService) Document(ctx context.Context, courseID string) (map[string]interface{}, error) {
	return nil, nil
}

func homeworkPolicy() models.GradingPolicy {
	return models.GradingPolicy{
		Graders: []models.GraderSpec{
			{Type: "Homework", MinCount: 2, DropCount: 0, Weight: 1.0, ShortLabel: "HW"},
		},
		Cutoffs: map[string]float64{"Pass": 0.5},
	}
}

func newCourseGradeFixture(t *testing.T, policy models.GradingPolicy) (*gorm.DB, CourseGradeService) {
	t.Helper()

	db := testDB(t)
	reader := NewScoreReader(repository.NewScoreRepository(db), nil, testLogger())
	grades := repository.NewGradeRepository(db)
	subsections := NewSubsectionGradeService(reader, grades, testLogger())
	svc := NewCourseGradeService(subsections, &fakePolicyService{policy: policy}, grades, testLogger())
	return db, svc
}

func TestCourseGradeAveragesHomework(t *testing.T) {
	db, svc := newCourseGradeFixture(t, homeworkPolicy())
	view := testView(t)
	cfg := models.DefaultCourseConfig(view.Course().String())

	attempted := time.Now().UTC()
	// seq1: both problems full marks -> 14/14.
	seedScore(t, db, 7, "p1", 5, 5, &attempted)
	seedScore(t, db, 7, "p2", 4, 4, &attempted)
	// seq2: half marks.
	seedScore(t, db, 7, "p3", 5, 10, &attempted)

	grade, err := svc.Compute(context.Background(), 7, view, cfg)
	require.NoError(t, err)

	// (1.0 + 0.5) / 2 = 0.75, nudged to 0.7505
	require.InDelta(t, 0.7505, grade.Percent, 1e-9)
	require.True(t, grade.Passed)
	require.Equal(t, "Pass", grade.LetterGrade)
}

func TestCourseGradePadsToMinCount(t *testing.T) {
	policy := homeworkPolicy()
	policy.Graders[0].MinCount = 4
	db, svc := newCourseGradeFixture(t, policy)
	view := testView(t)
	cfg := models.DefaultCourseConfig(view.Course().String())

	attempted := time.Now().UTC()
	seedScore(t, db, 7, "p1", 5, 5, &attempted)
	seedScore(t, db, 7, "p2", 4, 4, &attempted)
	seedScore(t, db, 7, "p3", 10, 10, &attempted)

	grade, err := svc.Compute(context.Background(), 7, view, cfg)
	require.NoError(t, err)

	// Two perfect scores padded with two zeros: 2/4, nudged to 0.5005.
	require.InDelta(t, 0.5005, grade.Percent, 1e-9)
	require.Len(t, grade.Summary.SectionBreakdown, 5) // 4 rows + the average row
}

func TestCourseGradeDropsLowest(t *testing.T) {
	policy := homeworkPolicy()
	policy.Graders[0].DropCount = 1
	db, svc := newCourseGradeFixture(t, policy)
	view := testView(t)
	cfg := models.DefaultCourseConfig(view.Course().String())

	attempted := time.Now().UTC()
	seedScore(t, db, 7, "p1", 5, 5, &attempted)
	seedScore(t, db, 7, "p2", 4, 4, &attempted)
	seedScore(t, db, 7, "p3", 2, 10, &attempted)

	grade, err := svc.Compute(context.Background(), 7, view, cfg)
	require.NoError(t, err)

	// The 0.2 homework is dropped; only the perfect one counts, and the
	// rounding nudge cannot push the percent past 1.
	require.InDelta(t, 1.0, grade.Percent, 1e-9)
}

func TestCourseGradeDropTiesDropLater(t *testing.T) {
	policy := homeworkPolicy()
	policy.Graders[0].DropCount = 1
	db, svc := newCourseGradeFixture(t, policy)
	view := testView(t)
	cfg := models.DefaultCourseConfig(view.Course().String())

	attempted := time.Now().UTC()
	// Both homeworks identical; the later one must be the dropped one.
	seedScore(t, db, 7, "p1", 5, 5, &attempted)
	seedScore(t, db, 7, "p2", 4, 4, &attempted)
	seedScore(t, db, 7, "p3", 10, 10, &attempted)

	grade, err := svc.Compute(context.Background(), 7, view, cfg)
	require.NoError(t, err)

	rows := grade.Summary.SectionBreakdown
	require.Len(t, rows, 3)
	require.NotContains(t, rows[0].Detail, "(dropped)")
	require.Contains(t, rows[1].Detail, "(dropped)")
}

func TestCourseGradeRoundingNudge(t *testing.T) {
	db, svc := newCourseGradeFixture(t, homeworkPolicy())
	view := testView(t)
	cfg := models.DefaultCourseConfig(view.Course().String())

	attempted := time.Now().UTC()
	// A 0.4999 average clears the cutoff via the half-cent nudge. Every
	// problem sits at the same ratio so the weighting cancels out.
	seedScore(t, db, 7, "p1", 4999, 10000, &attempted)
	seedScore(t, db, 7, "p2", 4999, 10000, &attempted)
	seedScore(t, db, 7, "p3", 4999, 10000, &attempted)

	grade, err := svc.Compute(context.Background(), 7, view, cfg)
	require.NoError(t, err)
	require.InDelta(t, 0.5004, grade.Percent, 1e-9)
	require.True(t, grade.Passed)
}

func TestCourseGradeFailsBelowCutoff(t *testing.T) {
	db, svc := newCourseGradeFixture(t, homeworkPolicy())
	view := testView(t)
	cfg := models.DefaultCourseConfig(view.Course().String())

	attempted := time.Now().UTC()
	seedScore(t, db, 7, "p1", 1, 5, &attempted)
	seedScore(t, db, 7, "p3", 2, 10, &attempted)

	grade, err := svc.Compute(context.Background(), 7, view, cfg)
	require.NoError(t, err)
	require.False(t, grade.Passed)
	require.Empty(t, grade.LetterGrade)
}

func TestCourseGradeLetterCutoffs(t *testing.T) {
	policy := homeworkPolicy()
	policy.Cutoffs = map[string]float64{"A": 0.9, "B": 0.7, "C": 0.5}
	db, svc := newCourseGradeFixture(t, policy)
	view := testView(t)
	cfg := models.DefaultCourseConfig(view.Course().String())

	attempted := time.Now().UTC()
	seedScore(t, db, 7, "p1", 5, 5, &attempted)
	seedScore(t, db, 7, "p2", 4, 4, &attempted)
	seedScore(t, db, 7, "p3", 5, 10, &attempted)

	grade, err := svc.Compute(context.Background(), 7, view, cfg)
	require.NoError(t, err)
	require.Equal(t, "B", grade.LetterGrade)
	require.True(t, grade.Passed)
}

func TestCourseGradeSingleSectionGrader(t *testing.T) {
	policy := models.GradingPolicy{
		Graders: []models.GraderSpec{
			{Type: "Homework", Name: "Homework 2", Weight: 1.0},
		},
		Cutoffs: map[string]float64{"Pass": 0.5},
	}
	db, svc := newCourseGradeFixture(t, policy)
	view := testView(t)
	cfg := models.DefaultCourseConfig(view.Course().String())

	attempted := time.Now().UTC()
	seedScore(t, db, 7, "p1", 5, 5, &attempted)
	seedScore(t, db, 7, "p3", 8, 10, &attempted)

	grade, err := svc.Compute(context.Background(), 7, view, cfg)
	require.NoError(t, err)
	require.InDelta(t, 0.8005, grade.Percent, 1e-9)
}

func TestCourseGradeSkipsSubsectionsWithoutScorableContent(t *testing.T) {
	policy := homeworkPolicy()
	policy.Graders[0].MinCount = 1
	db, svc := newCourseGradeFixture(t, policy)
	cfg := models.DefaultCourseConfig("course-v1:Demo+101+2026")

	// A graded homework holding only prose must not enter the bucket as a
	// permanent zero.
	nodes := []structure.BlockNode{
		{ID: "course", Category: structure.CategoryCourse, Children: []structure.BlockID{"ch1"}},
		{ID: "ch1", Category: structure.CategoryChapter, Children: []structure.BlockID{"seqA", "seqB"}},
		{ID: "seqA", Category: structure.CategorySequential, DisplayName: "Homework 1", Graded: true, Format: "Homework", Children: []structure.BlockID{"pA"}},
		{ID: "seqB", Category: structure.CategorySequential, DisplayName: "Homework 2", Graded: true, Format: "Homework", Children: []structure.BlockID{"readme"}},
		{ID: "pA", Category: structure.CategoryProblem, Graded: true, MaxScore: 5},
		{ID: "readme", Category: structure.CategoryHTML},
	}
	view, err := structure.NewView("course-v1:Demo+101+2026", nodes)
	require.NoError(t, err)

	attempted := time.Now().UTC()
	seedScore(t, db, 7, "pA", 5, 5, &attempted)

	grade, err := svc.Compute(context.Background(), 7, view, cfg)
	require.NoError(t, err)
	require.InDelta(t, 1.0, grade.Percent, 1e-9)
}

func TestCourseGradeLetterTieBreaksDeterministically(t *testing.T) {
	policy := homeworkPolicy()
	policy.Cutoffs = map[string]float64{"Distinction": 0.5, "Pass": 0.5}
	db, svc := newCourseGradeFixture(t, policy)
	view := testView(t)
	cfg := models.DefaultCourseConfig(view.Course().String())

	attempted := time.Now().UTC()
	seedScore(t, db, 7, "p1", 5, 5, &attempted)
	seedScore(t, db, 7, "p2", 4, 4, &attempted)
	seedScore(t, db, 7, "p3", 10, 10, &attempted)

	grade, err := svc.Compute(context.Background(), 7, view, cfg)
	require.NoError(t, err)
	require.Equal(t, "Distinction", grade.LetterGrade)
}

func TestCourseGradeUpdatePersistsAndStampsPassedAt(t *testing.T) {
	db, svc := newCourseGradeFixture(t, homeworkPolicy())
	view := testView(t)
	cfg := models.DefaultCourseConfig(view.Course().String())

	attempted := time.Now().UTC()
	seedScore(t, db, 7, "p1", 5, 5, &attempted)
	seedScore(t, db, 7, "p3", 10, 10, &attempted)

	_, err := svc.Update(context.Background(), 7, view, cfg)
	require.NoError(t, err)

	var row models.CourseGrade
	require.NoError(t, db.Where("user_id = ?", 7).First(&row).Error)
	require.True(t, row.Passed)
	require.NotNil(t, row.PassedAt)
	firstPassed := *row.PassedAt

	// A later failing recomputation keeps the original passed_at stamp.
	require.NoError(t, db.Where("user_id = ?", 7).Delete(&models.StudentScore{}).Error)
	_, err = svc.Update(context.Background(), 7, view, cfg)
	require.NoError(t, err)

	require.NoError(t, db.Where("user_id = ?", 7).First(&row).Error)
	require.False(t, row.Passed)
	require.NotNil(t, row.PassedAt)
	require.True(t, row.PassedAt.Equal(firstPassed))
}
