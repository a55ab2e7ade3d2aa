package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cristivoicu/appserver/internal/core/domain"
	"github.com/cristivoicu/appserver/pkg/utils"
)

func freezeTime(t *testing.T, at time.Time) {
	t.Helper()
	utils.Now = func() time.Time { return at }
	t.Cleanup(func() { utils.Now = time.Now })
}

func TestIssueAndValidateToken(t *testing.T) {
	freezeTime(t, time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC))

	auth := NewAuthService("secret", "AppServer", "20:00")
	account := &domain.User{Username: "alice", Role: domain.RoleUser, ProgramEnd: "18:30"}

	token, err := auth.IssueToken(account)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, domain.RoleUser, claims.Role)
	assert.Equal(t, "AppServer", claims.Issuer)

	// expiry pinned to the user's program end today
	expected := time.Date(2026, 8, 28, 18, 30, 0, 0, time.UTC)
	assert.True(t, claims.ExpiresAt.Time.Equal(expected))
}

func TestTokenExpiresAtProgramEnd(t *testing.T) {
	issued := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	freezeTime(t, issued)

	auth := NewAuthService("secret", "AppServer", "20:00")
	token, err := auth.IssueToken(&domain.User{Username: "alice", Role: domain.RoleUser, ProgramEnd: "18:30"})
	require.NoError(t, err)

	// step past the shift boundary
	utils.Now = func() time.Time { return issued.Add(9 * time.Hour) }

	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestTokenDefaultProgramEnd(t *testing.T) {
	freezeTime(t, time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC))

	auth := NewAuthService("secret", "AppServer", "20:00")
	token, err := auth.IssueToken(&domain.User{Username: "bob", Role: domain.RoleAdmin})
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	expected := time.Date(2026, 8, 28, 20, 0, 0, 0, time.UTC)
	assert.True(t, claims.ExpiresAt.Time.Equal(expected))
}

func TestProgramEndInPastRollsToTomorrow(t *testing.T) {
	freezeTime(t, time.Date(2026, 8, 28, 21, 0, 0, 0, time.UTC))

	auth := NewAuthService("secret", "AppServer", "20:00")
	token, err := auth.IssueToken(&domain.User{Username: "alice", Role: domain.RoleUser})
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	expected := time.Date(2026, 8, 29, 20, 0, 0, 0, time.UTC)
	assert.True(t, claims.ExpiresAt.Time.Equal(expected))
}

func TestValidateTokenRejectsForgery(t *testing.T) {
	freezeTime(t, time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC))

	auth := NewAuthService("secret", "AppServer", "20:00")
	other := NewAuthService("other-secret", "AppServer", "20:00")

	token, err := other.IssueToken(&domain.User{Username: "alice", Role: domain.RoleAdmin})
	require.NoError(t, err)

	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	_, err = auth.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenChecksIssuer(t *testing.T) {
	freezeTime(t, time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC))

	issuerA := NewAuthService("secret", "AppServer", "20:00")
	issuerB := NewAuthService("secret", "SomeoneElse", "20:00")

	token, err := issuerB.IssueToken(&domain.User{Username: "alice", Role: domain.RoleUser})
	require.NoError(t, err)

	_, err = issuerA.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
