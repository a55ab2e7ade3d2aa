package memory

import (
	"context"
	"sync"

	"github.com/cristivoicu/appserver/internal/core/domain"
	"github.com/cristivoicu/appserver/internal/core/ports"
)

type MemoryMapItemRepository struct {
	items []*domain.MapItem
	mu    sync.RWMutex
}

func NewMemoryMapItemRepository() ports.MapItemRepository {
	return &MemoryMapItemRepository{}
}

// ReplaceAll swaps the whole item set; the map is always edited as a unit.
func (r *MemoryMapItemRepository) ReplaceAll(ctx context.Context, items []*domain.MapItem) error {
	copied := make([]*domain.MapItem, 0, len(items))
	for _, item := range items {
		clone := *item
		copied = append(copied, &clone)
	}

	r.mu.Lock()
	r.items = copied
	r.mu.Unlock()
	return nil
}

func (r *MemoryMapItemRepository) List(ctx context.Context) ([]*domain.MapItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.MapItem, 0, len(r.items))
	for _, item := range r.items {
		clone := *item
		out = append(out, &clone)
	}
	return out, nil
}
