package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cristivoicu/appserver/internal/core/domain"
)

func TestAuditOnDate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAuditRepository().(*MemoryAuditRepository)

	day1 := time.Date(2026, 8, 27, 8, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)

	entries := []*domain.AuditEntry{
		{Actor: "alice", Description: "logged in", Severity: domain.SeverityInfo, Category: domain.CategorySession, At: day1},
		{Actor: "alice", Description: "started recording", Severity: domain.SeverityInfo, Category: domain.CategoryMedia, At: day2},
		{Actor: "bob", Description: "denied disableUser", Severity: domain.SeveritySecurity, Category: domain.CategoryDenied, At: day2},
	}
	for _, e := range entries {
		require.NoError(t, repo.Append(ctx, e))
	}

	// server log: everyone on one day
	log, err := repo.OnDate(ctx, "", day2)
	require.NoError(t, err)
	assert.Len(t, log, 2)

	// timeline: one actor on one day
	timeline, err := repo.OnDate(ctx, "alice", day2)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, "started recording", timeline[0].Description)

	// no day filter: the actor's whole history
	history, err := repo.OnDate(ctx, "alice", time.Time{})
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestAuditAppendAssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAuditRepository().(*MemoryAuditRepository)

	e1 := &domain.AuditEntry{Actor: "alice", At: time.Now()}
	e2 := &domain.AuditEntry{Actor: "alice", At: time.Now()}
	require.NoError(t, repo.Append(ctx, e1))
	require.NoError(t, repo.Append(ctx, e2))

	assert.Equal(t, e1.ID+1, e2.ID)
}
