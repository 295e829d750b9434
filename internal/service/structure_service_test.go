package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

func TestStructureProviderBuildsView(t *testing.T) {
	db := testDB(t)
	view := testView(t)
	seedBlocks(t, db, view)

	provider := NewStructureProvider(repository.NewBlockRepository(db), nil, time.Minute, testLogger())

	built, err := provider.GetCourseView(context.Background(), view.Course(), false)
	require.NoError(t, err)
	require.Equal(t, view.Root(), built.Root())
	require.Equal(t, []structure.BlockID{"seq1", "seq2", "seq3"}, built.Subsections())

	node, err := built.Get("p1")
	require.NoError(t, err)
	require.Equal(t, 5.0, node.MaxScore)
	require.NotNil(t, node.Weight)
}

func TestStructureProviderFiltersForLearners(t *testing.T) {
	db := testDB(t)
	view := testView(t)
	seedBlocks(t, db, view)

	future := time.Now().UTC().Add(24 * time.Hour)
	staffOnly := models.CourseBlock{
		CourseID: view.Course().String(), UsageKey: "seq-staff",
		Category: structure.CategorySequential, VisibleToStaffOnly: true,
	}
	scheduled := models.CourseBlock{
		CourseID: view.Course().String(), UsageKey: "seq-later",
		Category: structure.CategorySequential, StartAt: &future,
	}
	require.NoError(t, db.Create(&staffOnly).Error)
	require.NoError(t, db.Create(&scheduled).Error)

	provider := NewStructureProvider(repository.NewBlockRepository(db), nil, time.Minute, testLogger())

	learner, err := provider.GetCourseView(context.Background(), view.Course(), false)
	require.NoError(t, err)
	require.False(t, learner.Has("seq-staff"))
	require.False(t, learner.Has("seq-later"))

	staff, err := provider.GetCourseView(context.Background(), view.Course(), true)
	require.NoError(t, err)
	require.True(t, staff.Has("seq-staff"))
	require.True(t, staff.Has("seq-later"))
}

func TestStructureProviderServesFromCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db := testDB(t)
	view := testView(t)
	seedBlocks(t, db, view)

	provider := NewStructureProvider(repository.NewBlockRepository(db), cache, time.Minute, testLogger())

	first, err := provider.GetCourseView(context.Background(), view.Course(), false)
	require.NoError(t, err)

	// Later authored rows are invisible until the cache expires or is
	// invalidated.
	require.NoError(t, db.Create(&models.CourseBlock{
		CourseID: view.Course().String(), UsageKey: "seq-new",
		Category: structure.CategorySequential,
	}).Error)

	cached, err := provider.GetCourseView(context.Background(), view.Course(), false)
	require.NoError(t, err)
	require.Equal(t, first.Len(), cached.Len())
	require.False(t, cached.Has("seq-new"))

	provider.Invalidate(context.Background(), view.Course())

	fresh, err := provider.GetCourseView(context.Background(), view.Course(), false)
	require.NoError(t, err)
	require.True(t, fresh.Has("seq-new"))
}
