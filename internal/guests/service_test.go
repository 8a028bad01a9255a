package guests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-checkout/pkg/db/dbtest"
)

func newTestService(t *testing.T, ttl time.Duration, now func() time.Time) (*Service, *Repository) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	svc, err := NewService(ServiceParams{Repo: repo, TTL: ttl, Now: now})
	require.NoError(t, err)
	return svc, repo
}

func TestGetOrCreateMintsAndReuses(t *testing.T) {
	svc, _ := newTestService(t, time.Hour, nil)
	ctx := context.Background()

	guest, created, err := svc.GetOrCreate(ctx, "")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, guest.SessionToken)
	require.NotNil(t, guest.ExpiresAt)

	again, created, err := svc.GetOrCreate(ctx, guest.SessionToken)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, guest.ID, again.ID)
}

func TestGetOrCreateReplacesUnknownToken(t *testing.T) {
	svc, _ := newTestService(t, 0, nil)

	guest, created, err := svc.GetOrCreate(context.Background(), "forged-token")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, "forged-token", guest.SessionToken)
	assert.Nil(t, guest.ExpiresAt)
}

func TestResolveIgnoresExpiredSessions(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, time.Minute, func() time.Time { return clock })
	ctx := context.Background()

	guest, _, err := svc.GetOrCreate(ctx, "")
	require.NoError(t, err)

	found, err := svc.Resolve(ctx, guest.SessionToken)
	require.NoError(t, err)
	require.NotNil(t, found)

	clock = clock.Add(2 * time.Minute)
	found, err = svc.Resolve(ctx, guest.SessionToken)
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = svc.Resolve(ctx, "  ")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestNewServiceRequiresRepo(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
