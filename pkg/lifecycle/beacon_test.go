package lifecycle_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/pkg/lifecycle"
)

func TestHTTPBeacon(t *testing.T) {
	t.Run("posts body in background", func(t *testing.T) {
		var got atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var p lifecycle.LogoutPayload
			_ = json.NewDecoder(r.Body).Decode(&p)
			got.Store(p)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		b := lifecycle.NewHTTPBeacon(lifecycle.WithHTTPClient(srv.Client()))
		ok := b.Send(srv.URL+"/logout", "application/json", []byte(`{"token":"t","reason":"browser_close"}`))
		require.True(t, ok)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, b.Flush(ctx))
		assert.Equal(t, lifecycle.LogoutPayload{Token: "t", Reason: "browser_close"}, got.Load())
	})

	t.Run("relative url resolved against base", func(t *testing.T) {
		var path atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path.Store(r.URL.Path)
		}))
		defer srv.Close()

		b := lifecycle.NewHTTPBeacon(lifecycle.WithBaseURL(srv.URL))
		require.True(t, b.Send("/api/sessions/logout", "application/json", []byte(`{}`)))
		require.NoError(t, b.Flush(context.Background()))
		assert.Equal(t, "/api/sessions/logout", path.Load())
	})

	t.Run("invalid url is rejected", func(t *testing.T) {
		b := lifecycle.NewHTTPBeacon()
		assert.False(t, b.Send("/relative", "application/json", nil))
		assert.False(t, b.Send("ftp://example.com/x", "application/json", nil))
	})

	t.Run("timeout bounds slow endpoints", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		b := lifecycle.NewHTTPBeacon(lifecycle.WithBeaconTimeout(50 * time.Millisecond))
		start := time.Now()
		require.True(t, b.Send(srv.URL, "application/json", []byte(`{}`)))
		assert.Less(t, time.Since(start), 50*time.Millisecond, "send must not block")

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, b.Flush(ctx))
	})

	t.Run("flush honours context", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()

		b := lifecycle.NewHTTPBeacon(lifecycle.WithBeaconTimeout(time.Second))
		require.True(t, b.Send(srv.URL, "application/json", []byte(`{}`)))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, b.Flush(ctx), context.DeadlineExceeded)
		close(release)
		require.NoError(t, b.Flush(context.Background()))
	})
}

func TestPerformLogout(t *testing.T) {
	t.Run("acknowledged", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var p lifecycle.LogoutPayload
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			assert.Equal(t, "tok", p.Token)
			assert.Equal(t, "manual_logout", p.Reason)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		assert.True(t, lifecycle.PerformLogout(context.Background(), srv.Client(), srv.URL, "tok", "manual_logout"))
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		assert.False(t, lifecycle.PerformLogout(context.Background(), nil, srv.URL, "tok", "manual_logout"))
	})

	t.Run("missing token or unreachable", func(t *testing.T) {
		assert.False(t, lifecycle.PerformLogout(context.Background(), nil, "http://127.0.0.1:1", "", "x"))
		assert.False(t, lifecycle.PerformLogout(context.Background(), nil, "http://127.0.0.1:1", "tok", "x"))
	})
}
