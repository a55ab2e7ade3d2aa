package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cristivoicu/appserver/internal/core/domain"
	"github.com/cristivoicu/appserver/internal/core/ports"
	"github.com/cristivoicu/appserver/pkg/utils"
)

type MemoryVideoRepository struct {
	videos []*domain.Video
	nextID int64
	mu     sync.RWMutex
}

func NewMemoryVideoRepository() ports.VideoRepository {
	return &MemoryVideoRepository{}
}

func (r *MemoryVideoRepository) Add(ctx context.Context, video *domain.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	stored := *video
	stored.ID = r.nextID
	r.videos = append(r.videos, &stored)
	video.ID = stored.ID
	return nil
}

func (r *MemoryVideoRepository) Query(ctx context.Context, owner string, day time.Time) ([]*domain.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Video
	for _, v := range r.videos {
		if owner != "" && v.Owner != owner {
			continue
		}
		if !day.IsZero() && !utils.SameDay(v.CreatedAt, day) {
			continue
		}
		clone := *v
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
