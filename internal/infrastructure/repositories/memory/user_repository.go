package memory

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/cristivoicu/appserver/internal/core/domain"
	"github.com/cristivoicu/appserver/internal/core/ports"
)

type MemoryUserRepository struct {
	users  map[string]*domain.User
	nextID int64
	mu     sync.RWMutex
}

func NewMemoryUserRepository() ports.UserRepository {
	return &MemoryUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (r *MemoryUserRepository) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	r.mu.RLock()
	user, exists := r.users[username]
	r.mu.RUnlock()

	if !exists {
		// Burn a comparison anyway so a missing account costs the same as a
		// wrong password.
		bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(password))
		return nil, domain.ErrAuthentication
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, domain.ErrAuthentication
	}
	if user.Status == domain.StatusDisabled {
		return nil, domain.ErrAccountDisabled
	}

	return r.copyOf(user), nil
}

func (r *MemoryUserRepository) Get(ctx context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[username]
	if !exists {
		return nil, domain.ErrUserNotFound
	}
	return r.copyOf(user), nil
}

func (r *MemoryUserRepository) Add(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.Username]; exists {
		return domain.ErrDuplicateUser
	}

	r.nextID++
	stored := *user
	stored.ID = r.nextID
	r.users[user.Username] = &stored
	user.ID = stored.ID
	return nil
}

func (r *MemoryUserRepository) Update(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.users[user.Username]
	if !exists {
		return domain.ErrUserNotFound
	}

	updated := *user
	updated.ID = existing.ID
	r.users[user.Username] = &updated
	return nil
}

func (r *MemoryUserRepository) Disable(ctx context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[username]
	if !exists {
		return domain.ErrUserNotFound
	}

	user.Status = domain.StatusDisabled
	return nil
}

func (r *MemoryUserRepository) SetStatus(ctx context.Context, username string, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[username]
	if !exists {
		return domain.ErrUserNotFound
	}

	user.Status = status
	return nil
}

func (r *MemoryUserRepository) ListAll(ctx context.Context) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*domain.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, r.copyOf(user))
	}
	return users, nil
}

func (r *MemoryUserRepository) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var users []*domain.User
	for _, user := range r.users {
		if user.Status == status {
			users = append(users, r.copyOf(user))
		}
	}
	return users, nil
}

// copyOf shields stored records from caller mutation.
func (r *MemoryUserRepository) copyOf(user *domain.User) *domain.User {
	clone := *user
	return &clone
}
