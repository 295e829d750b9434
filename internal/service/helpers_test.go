package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.CourseBlock{},
		&models.StudentScore{},
		&models.SubsectionGrade{},
		&models.SubsectionGradeOverride{},
		&models.CourseGrade{},
		&models.Milestone{},
		&models.CourseContentMilestone{},
		&models.UserMilestone{},
		&models.CourseConfig{},
		&models.CoursePolicy{},
		&models.CourseAccessRole{},
		&models.BlockCompletion{},
	))

	return db
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

// testView builds a two-chapter course with two graded homework
// subsections and one ungraded one.
//
//	course
//	├── ch1
//	│   ├── seq1 (graded, Homework): p1 (weight 10, max 5), p2 (max 4)
//	│   └── seq2 (graded, Homework): p3 (max 10)
//	└── ch2
//	    └── seq3 (ungraded): p4 (max 2)
func testView(t *testing.T) *structure.View {
	t.Helper()

	nodes := []structure.BlockNode{
		{ID: "course", Category: structure.CategoryCourse, DisplayName: "Demo Course", Children: []structure.BlockID{"ch1", "ch2"}},
		{ID: "ch1", Category: structure.CategoryChapter, DisplayName: "Week 1", Children: []structure.BlockID{"seq1", "seq2"}},
		{ID: "ch2", Category: structure.CategoryChapter, DisplayName: "Week 2", Children: []structure.BlockID{"seq3"}},
		{ID: "seq1", Category: structure.CategorySequential, DisplayName: "Homework 1", Graded: true, Format: "Homework", Children: []structure.BlockID{"vert1"}},
		{ID: "seq2", Category: structure.CategorySequential, DisplayName: "Homework 2", Graded: true, Format: "Homework", Children: []structure.BlockID{"vert2"}},
		{ID: "seq3", Category: structure.CategorySequential, DisplayName: "Reading", Children: []structure.BlockID{"vert3"}},
		{ID: "vert1", Category: structure.CategoryVertical, Children: []structure.BlockID{"p1", "p2"}},
		{ID: "vert2", Category: structure.CategoryVertical, Children: []structure.BlockID{"p3"}},
		{ID: "vert3", Category: structure.CategoryVertical, Children: []structure.BlockID{"p4"}},
		{ID: "p1", Category: structure.CategoryProblem, DisplayName: "Problem 1", Graded: true, Weight: floatPtr(10), MaxScore: 5},
		{ID: "p2", Category: structure.CategoryProblem, DisplayName: "Problem 2", Graded: true, MaxScore: 4},
		{ID: "p3", Category: structure.CategoryProblem, DisplayName: "Problem 3", Graded: true, MaxScore: 10},
		{ID: "p4", Category: structure.CategoryProblem, DisplayName: "Problem 4", MaxScore: 2},
	}

	view, err := structure.NewView("course-v1:Demo+101+2026", nodes)
	require.NoError(t, err)
	return view
}

// seedBlocks mirrors testView into the course_blocks table for services
// that look blocks up by usage key.
func seedBlocks(t *testing.T, db *gorm.DB, view *structure.View) {
	t.Helper()

	ids := append([]structure.BlockID{view.Root()}, view.Descendants(view.Root())...)
	for position, id := range ids {
		node, err := view.Get(id)
		require.NoError(t, err)

		block := models.CourseBlock{
			CourseID:    view.Course().String(),
			UsageKey:    id.String(),
			Category:    node.Category,
			DisplayName: node.DisplayName,
			Graded:      node.Graded,
			Format:      node.Format,
			Weight:      node.Weight,
			MaxScore:    node.MaxScore,
			Position:    position,
		}
		keys := make([]string, 0, len(node.Children))
		for _, child := range node.Children {
			keys = append(keys, child.String())
		}
		require.NoError(t, block.SetChildKeys(keys))
		require.NoError(t, db.Create(&block).Error)
	}
}

type fakeRoleProvider struct {
	staff map[uint]bool
}

func (f *fakeRoleProvider) IsStaff(ctx context.Context, userID uint, courseID structure.CourseID) (bool, error) {
	return f.staff[userID], nil
}

type fakeCompletionProvider struct {
	percentages map[structure.BlockID]float64
}

func (f *fakeCompletionProvider) SubsectionCompletionPercentage(ctx context.Context, userID uint, usageKey structure.BlockID) (float64, error) {
	return f.percentages[usageKey], nil
}

type fakeSubmissionsProvider struct {
	scores map[structure.BlockID]*SubmissionsScore
}

func (f *fakeSubmissionsProvider) GetSubmissionsScore(ctx context.Context, userID uint, usageKey structure.BlockID) (*SubmissionsScore, error) {
	return f.scores[usageKey], nil
}

type fakeStructureProvider struct {
	view        *structure.View
	invalidated int
}

func (f *fakeStructureProvider) GetCourseView(ctx context.Context, courseID structure.CourseID, staff bool) (*structure.View, error) {
	return f.view, nil
}

func (f *fakeStructureProvider) Invalidate(ctx context.Context, courseID structure.CourseID) {
	f.invalidated++
}

type fakeUnlockNotifier struct {
	events []UnlockEvent
}

func (f *fakeUnlockNotifier) NotifyUnlock(ctx context.Context, event UnlockEvent) {
	f.events = append(f.events, event)
}
