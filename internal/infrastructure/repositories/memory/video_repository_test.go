package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cristivoicu/appserver/internal/core/domain"
)

func TestVideoQueryFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryVideoRepository().(*MemoryVideoRepository)

	day1 := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Add(ctx, &domain.Video{Owner: "alice", Path: "/r/a1.webm", CreatedAt: day1}))
	require.NoError(t, repo.Add(ctx, &domain.Video{Owner: "alice", Path: "/r/a2.webm", CreatedAt: day2}))
	require.NoError(t, repo.Add(ctx, &domain.Video{Owner: "bob", Path: "/r/b1.webm", CreatedAt: day2}))

	all, err := repo.Query(ctx, "", time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	alice, err := repo.Query(ctx, "alice", time.Time{})
	require.NoError(t, err)
	assert.Len(t, alice, 2)

	aliceDay2, err := repo.Query(ctx, "alice", day2)
	require.NoError(t, err)
	require.Len(t, aliceDay2, 1)
	assert.Equal(t, "/r/a2.webm", aliceDay2[0].Path)

	nothing, err := repo.Query(ctx, "carol", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, nothing)
}

func TestVideoAddAssignsIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryVideoRepository().(*MemoryVideoRepository)

	v1 := &domain.Video{Owner: "alice", Path: "/r/1.webm", CreatedAt: time.Now()}
	v2 := &domain.Video{Owner: "alice", Path: "/r/2.webm", CreatedAt: time.Now()}
	require.NoError(t, repo.Add(ctx, v1))
	require.NoError(t, repo.Add(ctx, v2))

	assert.NotZero(t, v1.ID)
	assert.NotEqual(t, v1.ID, v2.ID)
}
