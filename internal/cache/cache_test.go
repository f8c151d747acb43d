package cache_test

import (
	"context"
	"testing"
	"time"

	"student-records/internal/cache"
	"student-records/internal/student"
	"student-records/internal/testing/testredis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Redis(t *testing.T) {
	rc := testredis.SetupSharedRedis(t)
	defer rc.Cleanup(t)

	ctx := context.Background()

	t.Run("SetGetAdvance", func(t *testing.T) {
		c := cache.NewWithClient(rc.Client(t), time.Minute)

		stored, err := c.SetIfGeneration(ctx, "k", "k:gen", 0, map[string]int{"a": 1})
		require.NoError(t, err)
		require.True(t, stored)

		var got map[string]int
		require.NoError(t, c.Get(ctx, "k", &got))
		assert.Equal(t, 1, got["a"])

		require.NoError(t, c.Advance(ctx, "k:gen", "k"))
		assert.ErrorIs(t, c.Get(ctx, "k", &got), cache.ErrCacheMiss)
	})

	t.Run("EmptyKey", func(t *testing.T) {
		c := cache.NewWithClient(rc.Client(t), time.Minute)

		_, err := c.SetIfGeneration(ctx, "", "gen", 0, 1)
		assert.ErrorIs(t, err, cache.ErrCacheKeyEmpty)
		assert.ErrorIs(t, c.Advance(ctx, ""), cache.ErrCacheKeyEmpty)
	})

	t.Run("StudentViews", func(t *testing.T) {
		views := cache.NewStudentViews(cache.NewWithClient(rc.Client(t), time.Minute))

		_, ok, err := views.Get(ctx, "STU00001")
		require.NoError(t, err)
		assert.False(t, ok)

		fee := 1200.0
		view := &student.StudentView{
			Student: student.MasterView{
				Master: student.Master{StudentUID: "STU00001", Name: "A", Email: "a@x.com", Stage: student.StageExtended},
				Photo:  "aGVsbG8=",
			},
			Fees: []student.FeeLedger{{StudentUID: "STU00001", FeeSlots: student.FeeSlots{FeesYear1: &fee}}},
		}
		generation, err := views.Generation(ctx, "STU00001")
		require.NoError(t, err)
		stored, err := views.Set(ctx, "STU00001", view, generation)
		require.NoError(t, err)
		require.True(t, stored)

		got, ok, err := views.Get(ctx, "STU00001")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "A", got.Student.Name)
		assert.Equal(t, "aGVsbG8=", got.Student.Photo)
		assert.Equal(t, student.StageExtended, got.Student.Stage)
		require.Len(t, got.Fees, 1)
		assert.Equal(t, 1200.0, *got.Fees[0].FeesYear1)

		require.NoError(t, views.Invalidate(ctx, "STU00001"))
		_, ok, err = views.Get(ctx, "STU00001")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("StaleFillDropped", func(t *testing.T) {
		views := cache.NewStudentViews(cache.NewWithClient(rc.Client(t), time.Minute))
		stale := &student.StudentView{Student: student.MasterView{Master: student.Master{StudentUID: "STU00002", Name: "Before"}}}

		generation, err := views.Generation(ctx, "STU00002")
		require.NoError(t, err)

		// a committed update invalidates while the view is being loaded
		require.NoError(t, views.Invalidate(ctx, "STU00002"))

		stored, err := views.Set(ctx, "STU00002", stale, generation)
		require.NoError(t, err)
		assert.False(t, stored)

		_, ok, err := views.Get(ctx, "STU00002")
		require.NoError(t, err)
		assert.False(t, ok)

		fresh, err := views.Generation(ctx, "STU00002")
		require.NoError(t, err)
		assert.Equal(t, generation+1, fresh)

		stored, err = views.Set(ctx, "STU00002", stale, fresh)
		require.NoError(t, err)
		assert.True(t, stored)
	})

	t.Run("GenerationAndAdvance", func(t *testing.T) {
		c := cache.NewWithClient(rc.Client(t), time.Minute)

		gen, err := c.Generation(ctx, "gen")
		require.NoError(t, err)
		assert.Zero(t, gen)

		stored, err := c.SetIfGeneration(ctx, "v", "gen", gen, 1)
		require.NoError(t, err)
		require.True(t, stored)
		require.NoError(t, c.Advance(ctx, "gen", "v"))

		gen, err = c.Generation(ctx, "gen")
		require.NoError(t, err)
		assert.Equal(t, int64(1), gen)

		var got int
		assert.ErrorIs(t, c.Get(ctx, "v", &got), cache.ErrCacheMiss)
	})
}
