// Package storetest holds the behaviour every registry.Store must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/pkg/registry"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

// Record returns an active record for userID with unique id and token hash.
func Record(userID string, created time.Time) registry.Record {
	return registry.Record{
		ID:        uuid.NewString(),
		TokenHash: registry.HashToken(uuid.NewString()),
		UserID:    userID,
		Device: session.DeviceInfo{
			Fingerprint: "abc123",
			Browser:     "Firefox",
			OS:          "Linux",
			Class:       "desktop",
			UserAgent:   "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
		},
		IPAddress:       "203.0.113.7",
		Active:          true,
		CreatedAt:       created,
		LastActivity:    created,
		ExpiresAt:       created.Add(30 * time.Minute),
		IdleTimeout:     30 * time.Minute,
		AbsoluteTimeout: 8 * time.Hour,
	}
}

// Run exercises store. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) registry.Store) {
	t.Helper()
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		rec := Record("user-"+uuid.NewString(), created)
		require.NoError(t, store.Create(ctx, rec))

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		assertRecord(t, rec, got)

		got, err = store.GetByTokenHash(ctx, rec.TokenHash)
		require.NoError(t, err)
		assertRecord(t, rec, got)
	})

	t.Run("duplicate create", func(t *testing.T) {
		store := newStore(t)
		rec := Record("user-"+uuid.NewString(), created)
		require.NoError(t, store.Create(ctx, rec))
		assert.ErrorIs(t, store.Create(ctx, rec), registry.ErrDuplicate)
	})

	t.Run("missing records", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, registry.ErrNotFound)
		_, err = store.GetByTokenHash(ctx, registry.HashToken("missing"))
		assert.ErrorIs(t, err, registry.ErrNotFound)
		assert.ErrorIs(t, store.Update(ctx, Record("u", created)), registry.ErrNotFound)
	})

	t.Run("update", func(t *testing.T) {
		store := newStore(t)
		rec := Record("user-"+uuid.NewString(), created)
		require.NoError(t, store.Create(ctx, rec))

		rec.Active = false
		rec.RevokedAt = created.Add(time.Minute)
		rec.RevokeReason = session.ReasonRevoked
		rec.LastActivity = created.Add(30 * time.Second)
		require.NoError(t, store.Update(ctx, rec))

		got, err := store.GetByTokenHash(ctx, rec.TokenHash)
		require.NoError(t, err)
		assertRecord(t, rec, got)
	})

	t.Run("list active by user", func(t *testing.T) {
		store := newStore(t)
		userID := "user-" + uuid.NewString()

		first := Record(userID, created)
		second := Record(userID, created.Add(time.Minute))
		ended := Record(userID, created.Add(2*time.Minute))
		ended.Active = false
		other := Record("user-"+uuid.NewString(), created)
		for _, rec := range []registry.Record{second, first, ended, other} {
			require.NoError(t, store.Create(ctx, rec))
		}

		list, err := store.ListActiveByUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, first.ID, list[0].ID)
		assert.Equal(t, second.ID, list[1].ID)

		list, err = store.ListActiveByUser(ctx, "nobody-"+uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func assertRecord(t *testing.T, want, got registry.Record) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.TokenHash, got.TokenHash)
	assert.Equal(t, want.UserID, got.UserID)
	assert.Equal(t, want.Device, got.Device)
	assert.Equal(t, want.IPAddress, got.IPAddress)
	assert.Equal(t, want.Active, got.Active)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at")
	assert.True(t, want.LastActivity.Equal(got.LastActivity), "last_activity")
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt), "expires_at")
	assert.Equal(t, want.IdleTimeout, got.IdleTimeout)
	assert.Equal(t, want.AbsoluteTimeout, got.AbsoluteTimeout)
	assert.True(t, want.RevokedAt.Equal(got.RevokedAt), "revoked_at")
	assert.Equal(t, want.RevokeReason, got.RevokeReason)
}
