package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagodirecto/crm/internal/shared"
)

type mockUserRepo struct {
	users       map[uuid.UUID]User
	hashes      map[uuid.UUID]string
	deleted     map[uuid.UUID]time.Time
	createErr   error
	passwordErr error
}

var _ RepositoryPort = (*mockUserRepo)(nil)

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		users:   make(map[uuid.UUID]User),
		hashes:  make(map[uuid.UUID]string),
		deleted: make(map[uuid.UUID]time.Time),
	}
}

func (m *mockUserRepo) List(_ context.Context, tenantID uuid.UUID) ([]User, error) {
	var out []User
	for id, u := range m.users {
		if _, gone := m.deleted[id]; gone {
			continue
		}
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) Get(_ context.Context, id uuid.UUID) (*User, error) {
	if _, gone := m.deleted[id]; gone {
		return nil, shared.ErrUserNotFound
	}
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return &u, nil
}

func (m *mockUserRepo) Create(_ context.Context, u User, passwordHash string) (*User, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = u
	m.hashes[u.ID] = passwordHash
	return &u, nil
}

func (m *mockUserRepo) Update(_ context.Context, u User) (*User, error) {
	if _, ok := m.users[u.ID]; !ok {
		return nil, shared.ErrUserNotFound
	}
	u.UpdatedAt = time.Now().UTC()
	m.users[u.ID] = u
	return &u, nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	if m.passwordErr != nil {
		return m.passwordErr
	}
	if _, ok := m.users[id]; !ok {
		return shared.ErrUserNotFound
	}
	m.hashes[id] = passwordHash
	return nil
}

func (m *mockUserRepo) UpdateMFA(_ context.Context, id uuid.UUID, enabled bool) error {
	u, ok := m.users[id]
	if !ok {
		return shared.ErrUserNotFound
	}
	u.MFAEnabled = enabled
	m.users[id] = u
	return nil
}

func (m *mockUserRepo) SoftDelete(_ context.Context, id uuid.UUID, now time.Time) error {
	if _, ok := m.users[id]; !ok {
		return shared.ErrUserNotFound
	}
	m.deleted[id] = now
	return nil
}

type fakeRevoker struct {
	calls []uuid.UUID
	err   error
}

func (f *fakeRevoker) RevokeAllForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	f.calls = append(f.calls, userID)
	return 2, f.err
}

type fakeLocker struct {
	lockedUntil map[uuid.UUID]*time.Time
	unlocked    []uuid.UUID
}

func (f *fakeLocker) Lock(_ context.Context, _, userID uuid.UUID, until *time.Time) error {
	if f.lockedUntil == nil {
		f.lockedUntil = make(map[uuid.UUID]*time.Time)
	}
	f.lockedUntil[userID] = until
	return nil
}

func (f *fakeLocker) Unlock(_ context.Context, _, userID uuid.UUID) error {
	f.unlocked = append(f.unlocked, userID)
	return nil
}

type fakeHasher struct{ err error }

func (f fakeHasher) Hash(plaintext string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "hashed:" + plaintext, nil
}

type usersFixture struct {
	repo    *mockUserRepo
	revoker *fakeRevoker
	locker  *fakeLocker
	service *Service
}

func newUsersFixture() *usersFixture {
	f := &usersFixture{
		repo:    newMockUserRepo(),
		revoker: &fakeRevoker{},
		locker:  &fakeLocker{},
	}
	f.service = NewService(f.repo, fakeHasher{}, f.revoker, f.locker, nil, nil)
	return f
}

func TestCreateHashesPasswordAndDefaultsStatus(t *testing.T) {
	f := newUsersFixture()
	actor := uuid.New()

	created, err := f.service.Create(context.Background(), actor, User{
		TenantID: uuid.New(),
		Username: "jgarcia",
		Email:    "jgarcia@example.com",
	}, "open-sesame")
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", created.Status)
	assert.Equal(t, "hashed:open-sesame", f.repo.hashes[created.ID])
}

func TestCreateKeepsExplicitStatus(t *testing.T) {
	f := newUsersFixture()

	created, err := f.service.Create(context.Background(), uuid.New(), User{
		TenantID: uuid.New(),
		Username: "jgarcia",
		Email:    "jgarcia@example.com",
		Status:   "INACTIVE",
	}, "open-sesame")
	require.NoError(t, err)
	assert.Equal(t, "INACTIVE", created.Status)
}

func TestCreateHasherFailure(t *testing.T) {
	f := newUsersFixture()
	f.service = NewService(f.repo, fakeHasher{err: errors.New("cost out of range")}, f.revoker, f.locker, nil, nil)

	_, err := f.service.Create(context.Background(), uuid.New(), User{Username: "x"}, "pw")
	assert.Error(t, err)
	assert.Empty(t, f.repo.users)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	f := newUsersFixture()
	created, err := f.service.Create(context.Background(), uuid.New(), User{Username: "jgarcia", Email: "j@example.com"}, "old")
	require.NoError(t, err)

	require.NoError(t, f.service.ChangePassword(context.Background(), uuid.New(), created.ID, "brand-new"))
	assert.Equal(t, "hashed:brand-new", f.repo.hashes[created.ID])
	assert.Equal(t, []uuid.UUID{created.ID}, f.revoker.calls)
}

func TestChangePasswordToleratesRevokeFailure(t *testing.T) {
	f := newUsersFixture()
	f.revoker.err = errors.New("redis unavailable")
	created, err := f.service.Create(context.Background(), uuid.New(), User{Username: "jgarcia", Email: "j@example.com"}, "old")
	require.NoError(t, err)

	// Session revocation is best effort; the credential change must stick.
	require.NoError(t, f.service.ChangePassword(context.Background(), uuid.New(), created.ID, "brand-new"))
	assert.Equal(t, "hashed:brand-new", f.repo.hashes[created.ID])
}

func TestChangePasswordUnknownUser(t *testing.T) {
	f := newUsersFixture()
	err := f.service.ChangePassword(context.Background(), uuid.New(), uuid.New(), "pw")
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
	assert.Empty(t, f.revoker.calls)
}

func TestDeleteSoftDeletesAndRevokes(t *testing.T) {
	f := newUsersFixture()
	created, err := f.service.Create(context.Background(), uuid.New(), User{Username: "jgarcia", Email: "j@example.com"}, "pw")
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(context.Background(), uuid.New(), created.ID))
	assert.Equal(t, []uuid.UUID{created.ID}, f.revoker.calls)

	_, err = f.service.Get(context.Background(), created.ID)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestLockAndUnlockDelegate(t *testing.T) {
	f := newUsersFixture()
	userID := uuid.New()
	until := time.Now().UTC().Add(time.Hour)

	require.NoError(t, f.service.Lock(context.Background(), uuid.New(), userID, &until))
	require.Equal(t, &until, f.locker.lockedUntil[userID])

	require.NoError(t, f.service.Unlock(context.Background(), uuid.New(), userID))
	assert.Equal(t, []uuid.UUID{userID}, f.locker.unlocked)
}

type fakeVerifier struct {
	accept string
	calls  int
}

func (f *fakeVerifier) VerifyPassword(_ context.Context, _ uuid.UUID, plaintext string) error {
	f.calls++
	if plaintext != f.accept {
		return shared.ErrInvalidCredentials
	}
	return nil
}

func TestUpdateProfileEditsOwnFieldsOnly(t *testing.T) {
	f := newUsersFixture()
	created, err := f.service.Create(context.Background(), uuid.New(), User{
		Username: "jgarcia", Email: "j@example.com", FullName: "J Garcia",
	}, "pw")
	require.NoError(t, err)

	name := "Juana Garcia"
	updated, err := f.service.UpdateProfile(context.Background(), created.ID, ProfileInput{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Juana Garcia", updated.FullName)
	// Untouched fields survive the partial edit.
	assert.Equal(t, "j@example.com", updated.Email)
	assert.Equal(t, "ACTIVE", updated.Status)
}

func TestChangeOwnPasswordRequiresCurrent(t *testing.T) {
	f := newUsersFixture()
	verifier := &fakeVerifier{accept: "old-password"}
	f.service.WithPasswordVerifier(verifier)
	created, err := f.service.Create(context.Background(), uuid.New(), User{
		Username: "jgarcia", Email: "j@example.com",
	}, "old-password")
	require.NoError(t, err)

	err = f.service.ChangeOwnPassword(context.Background(), created.ID, "not-the-password", "brand-new")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.Equal(t, "hashed:old-password", f.repo.hashes[created.ID])
	assert.Empty(t, f.revoker.calls)

	require.NoError(t, f.service.ChangeOwnPassword(context.Background(), created.ID, "old-password", "brand-new"))
	assert.Equal(t, "hashed:brand-new", f.repo.hashes[created.ID])
	assert.Equal(t, []uuid.UUID{created.ID}, f.revoker.calls)
	assert.Equal(t, 2, verifier.calls)
}

func TestChangeOwnPasswordWithoutVerifier(t *testing.T) {
	f := newUsersFixture()
	err := f.service.ChangeOwnPassword(context.Background(), uuid.New(), "a", "b")
	assert.Error(t, err)
}

func TestSetMFA(t *testing.T) {
	f := newUsersFixture()
	created, err := f.service.Create(context.Background(), uuid.New(), User{
		Username: "jgarcia", Email: "j@example.com",
	}, "pw")
	require.NoError(t, err)
	require.False(t, created.MFAEnabled)

	require.NoError(t, f.service.SetMFA(context.Background(), created.ID, true))
	got, err := f.service.Profile(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, got.MFAEnabled)

	require.NoError(t, f.service.SetMFA(context.Background(), created.ID, false))
	got, err = f.service.Profile(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, got.MFAEnabled)

	assert.ErrorIs(t, f.service.SetMFA(context.Background(), uuid.New(), true), shared.ErrUserNotFound)
}

func TestListScopesToTenant(t *testing.T) {
	f := newUsersFixture()
	tenantA := uuid.New()
	tenantB := uuid.New()
	_, err := f.service.Create(context.Background(), uuid.New(), User{TenantID: tenantA, Username: "a", Email: "a@example.com"}, "pw")
	require.NoError(t, err)
	_, err = f.service.Create(context.Background(), uuid.New(), User{TenantID: tenantB, Username: "b", Email: "b@example.com"}, "pw")
	require.NoError(t, err)

	list, err := f.service.List(context.Background(), tenantA)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].Username)
}
