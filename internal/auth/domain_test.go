package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagodirecto/crm/internal/shared"
)

func TestLockoutPolicyAllowAttempt(t *testing.T) {
	policy := DefaultLockoutPolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("active account may attempt", func(t *testing.T) {
		u := &User{Status: StatusActive}
		assert.NoError(t, policy.AllowAttempt(u, now))
	})

	t.Run("locked with future expiry is rejected with the expiry", func(t *testing.T) {
		until := now.Add(10 * time.Minute)
		u := &User{Status: StatusLocked, LockedUntil: &until}
		err := policy.AllowAttempt(u, now)
		var locked *shared.AccountLockedError
		require.ErrorAs(t, err, &locked)
		assert.Equal(t, until, locked.Until)
	})

	t.Run("administrative lock without expiry stays locked", func(t *testing.T) {
		u := &User{Status: StatusLocked}
		err := policy.AllowAttempt(u, now)
		var locked *shared.AccountLockedError
		require.ErrorAs(t, err, &locked)
		assert.True(t, locked.Until.IsZero())
	})

	t.Run("expired lock may attempt again", func(t *testing.T) {
		until := now.Add(-time.Second)
		u := &User{Status: StatusLocked, LockedUntil: &until}
		assert.NoError(t, policy.AllowAttempt(u, now))
	})
}

func TestLockoutPolicyApplyFailure(t *testing.T) {
	policy := LockoutPolicy{Threshold: 5, LockDuration: 30 * time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	u := &User{Status: StatusActive}
	for i := 0; i < 4; i++ {
		policy.ApplyFailure(u, now)
		assert.Equal(t, StatusActive, u.Status)
		assert.Nil(t, u.LockedUntil)
	}
	assert.Equal(t, 4, u.FailedAttempts)

	// The fifth failure trips the lock.
	policy.ApplyFailure(u, now)
	assert.Equal(t, StatusLocked, u.Status)
	require.NotNil(t, u.LockedUntil)
	assert.Equal(t, now.Add(30*time.Minute), *u.LockedUntil)
}

func TestLockoutPolicyApplySuccess(t *testing.T) {
	policy := DefaultLockoutPolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("resets counter and stamps last access", func(t *testing.T) {
		u := &User{Status: StatusActive, FailedAttempts: 3}
		policy.ApplySuccess(u, now)
		assert.Zero(t, u.FailedAttempts)
		require.NotNil(t, u.LastAccessAt)
		assert.Equal(t, now, *u.LastAccessAt)
	})

	t.Run("lazily unlocks an expired lock", func(t *testing.T) {
		until := now.Add(-time.Minute)
		u := &User{Status: StatusLocked, LockedUntil: &until, FailedAttempts: 5}
		policy.ApplySuccess(u, now)
		assert.Equal(t, StatusActive, u.Status)
		assert.Nil(t, u.LockedUntil)
		assert.Zero(t, u.FailedAttempts)
	})

	t.Run("does not lift an unexpired lock", func(t *testing.T) {
		until := now.Add(time.Minute)
		u := &User{Status: StatusLocked, LockedUntil: &until}
		policy.ApplySuccess(u, now)
		assert.Equal(t, StatusLocked, u.Status)
	})
}

func TestDefaultLockoutPolicy(t *testing.T) {
	policy := DefaultLockoutPolicy()
	assert.Equal(t, 5, policy.Threshold)
	assert.Equal(t, 30*time.Minute, policy.LockDuration)
}

func TestAccountLockedErrorIsNotInvalidCredentials(t *testing.T) {
	err := error(&shared.AccountLockedError{Until: time.Now()})
	assert.False(t, errors.Is(err, shared.ErrInvalidCredentials))
}
