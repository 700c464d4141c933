package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagodirecto/crm/internal/shared"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestTokens(t *testing.T, access, refresh time.Duration) *Tokens {
	t.Helper()
	tokens, err := NewTokens(TokenConfig{Secret: testSecret, AccessTTL: access, RefreshTTL: refresh})
	require.NoError(t, err)
	return tokens
}

func testUser() *User {
	return &User{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Username: "jperez",
		Email:    "jperez@example.com",
		Status:   StatusActive,
	}
}

func TestNewTokensRequiresSecret(t *testing.T) {
	_, err := NewTokens(TokenConfig{})
	assert.Error(t, err)
}

func TestNewTokensDefaults(t *testing.T) {
	tokens, err := NewTokens(TokenConfig{Secret: testSecret})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, tokens.AccessTTL())
	assert.Equal(t, 30*24*time.Hour, tokens.RefreshTTL())
}

func TestIssueAndValidateAccess(t *testing.T) {
	tokens := newTestTokens(t, 5*time.Minute, time.Hour)
	u := testUser()
	now := time.Now().UTC()

	raw, err := tokens.IssueAccess(u, []string{"administrator"}, []string{"users:admin", "customers:read"}, now)
	require.NoError(t, err)

	claims, err := tokens.ValidateAccess(raw)
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), claims.Subject)
	assert.Equal(t, u.TenantID.String(), claims.TenantID)
	assert.Equal(t, u.Username, claims.Username)
	assert.Equal(t, u.Email, claims.Email)
	assert.Equal(t, []string{"administrator"}, claims.Roles)
	assert.Equal(t, []string{"users:admin", "customers:read"}, claims.Permissions)
	assert.Equal(t, "access", claims.TokenType)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, now.Add(5*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestValidateAccessExpired(t *testing.T) {
	tokens := newTestTokens(t, 5*time.Minute, time.Hour)
	raw, err := tokens.IssueAccess(testUser(), nil, nil, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)

	_, err = tokens.ValidateAccess(raw)
	var invalid *shared.InvalidTokenError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, shared.TokenExpired, invalid.Reason)
}

func TestValidateAccessWrongKey(t *testing.T) {
	tokens := newTestTokens(t, 5*time.Minute, time.Hour)
	other, err := NewTokens(TokenConfig{Secret: []byte("another-key-another-key-another!")})
	require.NoError(t, err)

	raw, err := other.IssueAccess(testUser(), nil, nil, time.Now().UTC())
	require.NoError(t, err)

	_, err = tokens.ValidateAccess(raw)
	var invalid *shared.InvalidTokenError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, shared.TokenBadSign, invalid.Reason)
}

func TestValidateAccessMalformed(t *testing.T) {
	tokens := newTestTokens(t, 5*time.Minute, time.Hour)
	_, err := tokens.ValidateAccess("not.a.jwt")
	var invalid *shared.InvalidTokenError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, shared.TokenMalformed, invalid.Reason)
}

func TestNewRefreshValue(t *testing.T) {
	tokens := newTestTokens(t, time.Minute, time.Hour)
	a, err := tokens.NewRefreshValue()
	require.NoError(t, err)
	b, err := tokens.NewRefreshValue()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	// 32 bytes of entropy encode to 43 base64 characters.
	assert.Len(t, a, 43)
}

func TestHashRefreshValueStable(t *testing.T) {
	assert.Equal(t, HashRefreshValue("abc"), HashRefreshValue("abc"))
	assert.NotEqual(t, HashRefreshValue("abc"), HashRefreshValue("abd"))
	assert.Len(t, HashRefreshValue("abc"), 64)
}
