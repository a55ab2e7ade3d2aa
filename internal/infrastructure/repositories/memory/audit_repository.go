package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cristivoicu/appserver/internal/core/domain"
	"github.com/cristivoicu/appserver/internal/core/ports"
	"github.com/cristivoicu/appserver/pkg/utils"
)

type MemoryAuditRepository struct {
	entries []*domain.AuditEntry
	nextID  int64
	mu      sync.RWMutex
}

func NewMemoryAuditRepository() ports.AuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	stored := *entry
	stored.ID = r.nextID
	r.entries = append(r.entries, &stored)
	entry.ID = stored.ID
	return nil
}

func (r *MemoryAuditRepository) OnDate(ctx context.Context, actor string, day time.Time) ([]*domain.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.AuditEntry
	for _, e := range r.entries {
		if actor != "" && e.Actor != actor {
			continue
		}
		if !day.IsZero() && !utils.SameDay(e.At, day) {
			continue
		}
		clone := *e
		out = append(out, &clone)
	}
	return out, nil
}
