package memory

import (
	"context"
	"sync"

	"github.com/cristivoicu/appserver/internal/core/domain"
	"github.com/cristivoicu/appserver/internal/core/ports"
)

type MemoryLocationStore struct {
	locations map[string]domain.Location
	mu        sync.RWMutex
}

func NewMemoryLocationStore() ports.LocationStore {
	return &MemoryLocationStore{
		locations: make(map[string]domain.Location),
	}
}

func (r *MemoryLocationStore) Put(ctx context.Context, username string, loc domain.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations[username] = loc
	return nil
}

func (r *MemoryLocationStore) Get(ctx context.Context, username string) (domain.Location, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loc, ok := r.locations[username]
	return loc, ok, nil
}

func (r *MemoryLocationStore) All(ctx context.Context) (map[string]domain.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]domain.Location, len(r.locations))
	for username, loc := range r.locations {
		out[username] = loc
	}
	return out, nil
}

func (r *MemoryLocationStore) Remove(ctx context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locations, username)
	return nil
}
