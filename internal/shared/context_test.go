package shared

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPrincipalRoundTrip(t *testing.T) {
	p := &Principal{
		UserID:      uuid.New(),
		TenantID:    uuid.New(),
		Username:    "mrodriguez",
		Email:       "mrodriguez@example.com",
		Roles:       []string{"sales_manager"},
		Permissions: []string{"customers:read", "customers:update"},
	}
	ctx := ContextWithPrincipal(context.Background(), p)
	assert.Same(t, p, PrincipalFromContext(ctx))
	assert.Nil(t, PrincipalFromContext(context.Background()))
}

func TestHasPermission(t *testing.T) {
	p := &Principal{Permissions: []string{"customers:read", "users:admin"}}
	assert.True(t, p.HasPermission("customers:read"))
	assert.False(t, p.HasPermission("customers:delete"))
	assert.False(t, p.HasPermission(""))

	var nilPrincipal *Principal
	assert.False(t, nilPrincipal.HasPermission("customers:read"))
}

func TestQuerierFromContextFallsBack(t *testing.T) {
	fallback := unreachablePool(t)

	got := QuerierFromContext(context.Background(), fallback)
	assert.Equal(t, Querier(fallback), got)

	// A released session must never be handed out again.
	ctx := ContextWithTenantSession(context.Background(), &TenantSession{released: true})
	got = QuerierFromContext(ctx, fallback)
	assert.Equal(t, Querier(fallback), got)
}

func TestTenantSessionReleaseIsIdempotent(t *testing.T) {
	fallback := unreachablePool(t)
	s := &TenantSession{}
	ctx := ContextWithTenantSession(context.Background(), s)

	// Clearing twice is a no-op, even on already-cancelled contexts.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	s.Release(cancelled)
	s.Release(cancelled)
	assert.True(t, s.released)

	// After release the context hands out the fallback, not the session.
	got := QuerierFromContext(ctx, fallback)
	assert.Equal(t, Querier(fallback), got)

	var nilSession *TenantSession
	nilSession.Release(context.Background())
}
