package ports

import (
	"context"
	"time"

	"github.com/cristivoicu/appserver/internal/core/domain"
)

type UserRepository interface {
	// Authenticate verifies the password against the stored hash and returns
	// the account. Returns domain.ErrAuthentication on a mismatch and
	// domain.ErrAccountDisabled when the account exists but is disabled.
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	Get(ctx context.Context, username string) (*domain.User, error)
	Add(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	Disable(ctx context.Context, username string) error
	SetStatus(ctx context.Context, username string, status domain.Status) error
	ListAll(ctx context.Context) ([]*domain.User, error)
	ListByStatus(ctx context.Context, status domain.Status) ([]*domain.User, error)
}

type VideoRepository interface {
	Add(ctx context.Context, video *domain.Video) error
	// Query filters by owner and/or calendar day; empty owner or zero day
	// leaves that filter off.
	Query(ctx context.Context, owner string, day time.Time) ([]*domain.Video, error)
}

type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	// OnDate returns the server log for a calendar day; an empty actor means
	// all users, otherwise the result is that user's timeline.
	OnDate(ctx context.Context, actor string, day time.Time) ([]*domain.AuditEntry, error)
}

type MapItemRepository interface {
	ReplaceAll(ctx context.Context, items []*domain.MapItem) error
	List(ctx context.Context) ([]*domain.MapItem, error)
}

// LocationStore holds the last reported position of each connected user.
type LocationStore interface {
	Put(ctx context.Context, username string, loc domain.Location) error
	Get(ctx context.Context, username string) (domain.Location, bool, error)
	All(ctx context.Context) (map[string]domain.Location, error)
	Remove(ctx context.Context, username string) error
}
