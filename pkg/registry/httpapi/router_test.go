package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/pkg/clock"
	"github.com/dmitrymomot/sessionkit/pkg/ratelimiter"
	"github.com/dmitrymomot/sessionkit/pkg/registry"
	"github.com/dmitrymomot/sessionkit/pkg/registry/httpapi"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

type fixture struct {
	srv   *httptest.Server
	store *registry.MemoryStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := registry.NewMemoryStore()
	reg := registry.New(store,
		registry.WithClock(clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))),
	)
	srv := httptest.NewServer(httpapi.NewRouter(reg))
	t.Cleanup(srv.Close)
	return fixture{srv: srv, store: store}
}

func (f fixture) do(t *testing.T, method, path, contentType, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (f fixture) register(t *testing.T, userID, token string) session.Registration {
	t.Helper()
	body := `{"user_id":"` + userID + `","token":"` + token + `","max_concurrent_sessions":3}`
	resp := f.do(t, http.MethodPost, "/sessions", "application/json", body, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var reg session.Registration
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reg))
	return reg
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func actor(userID string, admin bool) http.Header {
	h := http.Header{}
	h.Set(httpapi.HeaderActorID, userID)
	if admin {
		h.Set(httpapi.HeaderActorAdmin, "true")
	}
	return h
}

func TestRouter_Register(t *testing.T) {
	t.Run("creates session and records client address", func(t *testing.T) {
		f := newFixture(t)
		reg := f.register(t, "user-1", "tok-1")
		require.NotEmpty(t, reg.SessionID)

		rec, err := f.store.Get(context.Background(), reg.SessionID)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", rec.IPAddress)
		assert.Equal(t, registry.HashToken("tok-1"), rec.TokenHash)
	})

	t.Run("missing user is bad request", func(t *testing.T) {
		f := newFixture(t)
		resp := f.do(t, http.MethodPost, "/sessions", "application/json", `{"token":"tok"}`, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "registry.invalid_request", decodeBody[httpapi.Error](t, resp).Error)
	})

	t.Run("malformed body is bad request", func(t *testing.T) {
		f := newFixture(t)
		resp := f.do(t, http.MethodPost, "/sessions", "application/json", `{"user_id":`, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("echoes request id", func(t *testing.T) {
		f := newFixture(t)
		h := http.Header{}
		h.Set("X-Request-ID", "req-42")
		resp := f.do(t, http.MethodPost, "/sessions", "application/json", `{"user_id":"u","token":"t"}`, h)
		assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
	})
}

func TestRouter_HeartbeatAndLogout(t *testing.T) {
	t.Run("heartbeat of live session", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "user-1", "tok-1")

		resp := f.do(t, http.MethodPost, "/sessions/heartbeat", "application/json", `{"token":"tok-1"}`, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		res := decodeBody[session.HeartbeatResult](t, resp)
		assert.True(t, res.Valid)
		assert.False(t, res.Invalidated())
	})

	t.Run("heartbeat of unknown token reports revoked", func(t *testing.T) {
		f := newFixture(t)
		resp := f.do(t, http.MethodPost, "/sessions/heartbeat", "application/json", `{"token":"nope"}`, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, decodeBody[session.HeartbeatResult](t, resp).Revoked)
	})

	t.Run("heartbeat without token", func(t *testing.T) {
		f := newFixture(t)
		resp := f.do(t, http.MethodPost, "/sessions/heartbeat", "application/json", `{}`, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bearer token fallback", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "user-1", "tok-1")
		h := http.Header{}
		h.Set("Authorization", "Bearer tok-1")

		resp := f.do(t, http.MethodPost, "/sessions/heartbeat", "", "", h)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, decodeBody[session.HeartbeatResult](t, resp).Valid)
	})

	t.Run("beacon logout is idempotent", func(t *testing.T) {
		f := newFixture(t)
		reg := f.register(t, "user-1", "tok-1")
		beacon := `{"token":"tok-1","reason":"browser_close"}`

		resp := f.do(t, http.MethodPost, "/sessions/logout", "text/plain;charset=UTF-8", beacon, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		res := decodeBody[session.LogoutResult](t, resp)
		assert.True(t, res.Success)
		assert.False(t, res.AlreadyLoggedOut)

		rec, err := f.store.Get(context.Background(), reg.SessionID)
		require.NoError(t, err)
		assert.False(t, rec.Active)
		assert.Equal(t, session.ReasonBrowserClose, rec.RevokeReason)

		resp = f.do(t, http.MethodPost, "/sessions/logout", "text/plain;charset=UTF-8", beacon, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, decodeBody[session.LogoutResult](t, resp).AlreadyLoggedOut)
	})
}

func TestRouter_Admin(t *testing.T) {
	t.Run("revoke needs an actor", func(t *testing.T) {
		f := newFixture(t)
		reg := f.register(t, "user-1", "tok-1")
		resp := f.do(t, http.MethodPost, "/sessions/revoke", "application/json", `{"session_id":"`+reg.SessionID+`"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("revoke by non owner is forbidden", func(t *testing.T) {
		f := newFixture(t)
		reg := f.register(t, "user-1", "tok-1")
		resp := f.do(t, http.MethodPost, "/sessions/revoke", "application/json",
			`{"session_id":"`+reg.SessionID+`"}`, actor("user-2", false))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "session.forbidden", decodeBody[httpapi.Error](t, resp).Error)
	})

	t.Run("revoke unknown session", func(t *testing.T) {
		f := newFixture(t)
		resp := f.do(t, http.MethodPost, "/sessions/revoke", "application/json",
			`{"session_id":"missing"}`, actor("admin", true))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("owner revokes all sessions", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "user-1", "tok-1")
		f.register(t, "user-1", "tok-2")

		resp := f.do(t, http.MethodPost, "/sessions/revoke", "application/json",
			`{"user_id":"user-1","revoke_all":true}`, actor("user-1", false))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2, decodeBody[httpapi.RevokeResponse](t, resp).RevokedCount)

		resp = f.do(t, http.MethodPost, "/sessions/heartbeat", "application/json", `{"token":"tok-1"}`, nil)
		assert.True(t, decodeBody[session.HeartbeatResult](t, resp).Revoked)
	})

	t.Run("list sessions of owner", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "user-1", "tok-1")

		resp := f.do(t, http.MethodGet, "/users/user-1/sessions", "", "", actor("user-1", false))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		list := decodeBody[httpapi.ListResponse](t, resp)
		require.Len(t, list.Sessions, 1)
		assert.Equal(t, "user-1", list.Sessions[0].UserID)
	})

	t.Run("list of user without sessions is empty array", func(t *testing.T) {
		f := newFixture(t)
		resp := f.do(t, http.MethodGet, "/users/user-9/sessions", "", "", actor("admin", true))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		list := decodeBody[httpapi.ListResponse](t, resp)
		assert.NotNil(t, list.Sessions)
		assert.Empty(t, list.Sessions)
	})

	t.Run("list by other user is forbidden", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "user-1", "tok-1")
		resp := f.do(t, http.MethodGet, "/users/user-1/sessions", "", "", actor("user-2", false))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("custom actor resolver", func(t *testing.T) {
		reg := registry.New(registry.NewMemoryStore())
		srv := httptest.NewServer(httpapi.NewRouter(reg, httpapi.WithActorResolver(
			func(*http.Request) (session.Actor, error) {
				return session.Actor{UserID: "root", Admin: true}, nil
			},
		)))
		defer srv.Close()

		resp, err := srv.Client().Get(srv.URL + "/users/anyone/sessions")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRouter_RateLimit(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	defer store.Close()
	limiter, err := ratelimiter.New(store,
		ratelimiter.Config{Capacity: 2, RefillRate: 1, RefillInterval: time.Minute},
		ratelimiter.WithClock(c),
	)
	require.NoError(t, err)

	reg := registry.New(registry.NewMemoryStore(), registry.WithClock(c))
	srv := httptest.NewServer(httpapi.NewRouter(reg, httpapi.WithRateLimiter(limiter)))
	defer srv.Close()
	f := fixture{srv: srv}

	for range 2 {
		resp := f.do(t, http.MethodPost, "/sessions/heartbeat", "application/json", `{"token":"t"}`, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := f.do(t, http.MethodPost, "/sessions/heartbeat", "application/json", `{"token":"t"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Equal(t, "httpapi.rate_limited", decodeBody[httpapi.Error](t, resp).Error)

	resp = f.do(t, http.MethodPost, "/sessions", "application/json", `{"user_id":"u","token":"t2"}`, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	c.Advance(time.Minute)
	resp = f.do(t, http.MethodPost, "/sessions/heartbeat", "application/json", `{"token":"t"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
