package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cristivoicu/appserver/internal/core/domain"
)

func seedUser(t *testing.T, repo *MemoryUserRepository, username, password string, role domain.Role) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, repo.Add(context.Background(), &domain.User{
		Username: username,
		Password: string(hash),
		Name:     username,
		Role:     role,
		Status:   domain.StatusOffline,
	}))
}

func TestAuthenticate(t *testing.T) {
	repo := NewMemoryUserRepository().(*MemoryUserRepository)
	seedUser(t, repo, "alice", "hunter22", domain.RoleUser)

	user, err := repo.Authenticate(context.Background(), "alice", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = repo.Authenticate(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, domain.ErrAuthentication)

	_, err = repo.Authenticate(context.Background(), "nobody", "hunter22")
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	repo := NewMemoryUserRepository().(*MemoryUserRepository)
	seedUser(t, repo, "alice", "hunter22", domain.RoleUser)

	require.NoError(t, repo.Disable(context.Background(), "alice"))

	_, err := repo.Authenticate(context.Background(), "alice", "hunter22")
	assert.ErrorIs(t, err, domain.ErrAccountDisabled)

	// wrong password still reads as an authentication failure, not a
	// disabled-account disclosure
	_, err = repo.Authenticate(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestAddDuplicate(t *testing.T) {
	repo := NewMemoryUserRepository().(*MemoryUserRepository)
	seedUser(t, repo, "alice", "hunter22", domain.RoleUser)

	err := repo.Add(context.Background(), &domain.User{Username: "alice"})
	assert.ErrorIs(t, err, domain.ErrDuplicateUser)
}

func TestDisablePersistsAndStatusTransitions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository().(*MemoryUserRepository)
	seedUser(t, repo, "alice", "hunter22", domain.RoleUser)

	require.NoError(t, repo.SetStatus(ctx, "alice", domain.StatusOnline))
	user, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnline, user.Status)

	require.NoError(t, repo.Disable(ctx, "alice"))
	user, err = repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisabled, user.Status)

	assert.ErrorIs(t, repo.Disable(ctx, "nobody"), domain.ErrUserNotFound)
	assert.ErrorIs(t, repo.SetStatus(ctx, "nobody", domain.StatusOnline), domain.ErrUserNotFound)
}

func TestListByStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository().(*MemoryUserRepository)
	seedUser(t, repo, "alice", "pw111111", domain.RoleUser)
	seedUser(t, repo, "bob", "pw222222", domain.RoleAdmin)
	seedUser(t, repo, "carol", "pw333333", domain.RoleUser)

	require.NoError(t, repo.SetStatus(ctx, "alice", domain.StatusOnline))
	require.NoError(t, repo.SetStatus(ctx, "bob", domain.StatusOnline))

	online, err := repo.ListByStatus(ctx, domain.StatusOnline)
	require.NoError(t, err)
	assert.Len(t, online, 2)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository().(*MemoryUserRepository)
	seedUser(t, repo, "alice", "hunter22", domain.RoleUser)

	user, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	user.Role = domain.RoleAdmin

	again, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, again.Role)
}
