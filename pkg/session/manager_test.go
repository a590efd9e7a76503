package session_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/pkg/activity"
	"github.com/dmitrymomot/sessionkit/pkg/broadcast"
	"github.com/dmitrymomot/sessionkit/pkg/clock"
	"github.com/dmitrymomot/sessionkit/pkg/device"
	"github.com/dmitrymomot/sessionkit/pkg/lifecycle"
	"github.com/dmitrymomot/sessionkit/pkg/session"
	"github.com/dmitrymomot/sessionkit/pkg/tabstore"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type tab struct {
	mgr       *session.Manager
	input     *activity.Emitter
	page      *lifecycle.Emitter
	storage   *tabstore.Memory
	ends      *endLog
	snapshots *snapshotLog
}

type endLog struct {
	mu      sync.Mutex
	reasons []session.Reason
}

func (l *endLog) add(r session.Reason) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reasons = append(l.reasons, r)
}

func (l *endLog) all() []session.Reason {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]session.Reason(nil), l.reasons...)
}

type snapshotLog struct {
	mu     sync.Mutex
	states []session.State
}

func (l *snapshotLog) add(s session.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *snapshotLog) all() []session.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]session.State(nil), l.states...)
}

type beaconLog struct {
	mu   sync.Mutex
	sent []lifecycle.LogoutPayload
}

func (b *beaconLog) Send(_, _ string, body []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	var p lifecycle.LogoutPayload
	_ = json.Unmarshal(body, &p)
	b.sent = append(b.sent, p)
	return true
}

func (b *beaconLog) all() []lifecycle.LogoutPayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]lifecycle.LogoutPayload(nil), b.sent...)
}

func newTab(t *testing.T, backend session.Backend, c clock.Clock, cfg session.Config, opts ...session.Option) *tab {
	t.Helper()

	tb := &tab{
		input:     activity.NewEmitter(),
		page:      lifecycle.NewEmitter(),
		storage:   tabstore.NewMemory(),
		ends:      &endLog{},
		snapshots: &snapshotLog{},
	}
	all := append([]session.Option{
		session.WithConfig(cfg),
		session.WithClock(c),
		session.WithStorage(tb.storage),
		session.WithActivitySource(tb.input),
		session.WithLifecycleSource(tb.page),
		session.WithEnvironment(&device.Environment{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			Language:  "en-US",
		}),
	}, opts...)
	tb.mgr = session.New(backend, all...)
	tb.mgr.OnEnd(tb.ends.add)
	tb.mgr.Subscribe(tb.snapshots.add)
	t.Cleanup(func() { _ = tb.mgr.Close() })
	return tb
}

func testConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.IdleTimeout = time.Minute
	cfg.WarnBeforeTimeout = 30 * time.Second
	cfg.HeartbeatInterval = 5 * time.Minute
	return cfg
}

func TestManager_StartSession(t *testing.T) {
	t.Run("registers and becomes active", func(t *testing.T) {
		backend := &fakeBackend{}
		c := clock.NewFake(epoch)
		tb := newTab(t, backend, c, testConfig())

		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))

		st := tb.mgr.State()
		assert.Equal(t, session.PhaseActive, st.Phase)
		assert.True(t, st.IsAuthenticated)
		assert.Equal(t, "user-1", st.UserID)
		assert.Len(t, st.SessionToken, 2*device.TokenBytes)
		assert.Equal(t, "sess-1", st.SessionID)
		assert.Equal(t, epoch, st.LastActivity)

		regs := backend.registrations()
		require.Len(t, regs, 1)
		assert.Equal(t, st.SessionToken, regs[0].Token)
		assert.Equal(t, "Chrome", regs[0].Device.Browser)
		assert.Equal(t, time.Minute, regs[0].IdleTimeout)
		assert.Equal(t, 3, regs[0].MaxConcurrentSessions)

		token, ok := tb.storage.Get(session.KeySessionToken)
		assert.True(t, ok)
		assert.Equal(t, st.SessionToken, token)
		userID, _ := tb.storage.Get(session.KeyUserID)
		assert.Equal(t, "user-1", userID)
	})

	t.Run("registration failure stays anonymous", func(t *testing.T) {
		backend := &fakeBackend{registerErr: errNetwork}
		tb := newTab(t, backend, clock.NewFake(epoch), testConfig())

		err := tb.mgr.StartSession(context.Background(), "user-1")
		require.ErrorIs(t, err, session.ErrRegistration)
		assert.ErrorIs(t, err, errNetwork)

		st := tb.mgr.State()
		assert.Equal(t, session.PhaseAnonymous, st.Phase)
		assert.False(t, st.IsAuthenticated)
		assert.Empty(t, st.SessionToken)
		assert.Empty(t, tb.storage.Keys())
	})

	t.Run("empty user id is rejected", func(t *testing.T) {
		tb := newTab(t, &fakeBackend{}, clock.NewFake(epoch), testConfig())
		assert.ErrorIs(t, tb.mgr.StartSession(context.Background(), ""), session.ErrRegistration)
	})

	t.Run("same user is a no-op", func(t *testing.T) {
		backend := &fakeBackend{}
		tb := newTab(t, backend, clock.NewFake(epoch), testConfig())
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))
		token := tb.mgr.Token()

		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))
		assert.Equal(t, token, tb.mgr.Token())
		assert.Len(t, backend.registrations(), 1)
	})

	t.Run("different user ends current session first", func(t *testing.T) {
		backend := &fakeBackend{}
		tb := newTab(t, backend, clock.NewFake(epoch), testConfig())
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))
		first := tb.mgr.Token()

		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-2"))
		assert.Equal(t, "user-2", tb.mgr.State().UserID)
		assert.Equal(t, []session.Reason{session.ReasonSignedOut}, tb.ends.all())
		assert.Equal(t, []logoutCall{{token: first, reason: session.ReasonSignedOut}}, backend.logoutCalls())
	})

	t.Run("without backend", func(t *testing.T) {
		mgr := session.New(nil)
		defer mgr.Close()
		assert.ErrorIs(t, mgr.StartSession(context.Background(), "u"), session.ErrNoBackend)
	})
}

func TestManager_EndSession(t *testing.T) {
	t.Run("idempotent termination", func(t *testing.T) {
		backend := &fakeBackend{}
		c := clock.NewFake(epoch)
		tb := newTab(t, backend, c, testConfig(), session.WithStorageNamespaces("sb-"))
		tb.storage.Set("sb-auth-token", "provider")
		tb.storage.Set("theme", "dark")

		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))
		token := tb.mgr.Token()

		tb.mgr.EndSession(context.Background(), session.ReasonManualLogout)
		first := tb.mgr.State()
		assert.NotPanics(t, func() { tb.mgr.EndSession(context.Background(), session.ReasonManualLogout) })

		assert.Equal(t, first, tb.mgr.State())
		assert.Equal(t, session.PhaseAnonymous, first.Phase)
		assert.Empty(t, first.SessionToken)
		assert.Equal(t, []logoutCall{{token: token, reason: session.ReasonManualLogout}}, backend.logoutCalls())
		assert.Equal(t, []session.Reason{session.ReasonManualLogout}, tb.ends.all())
		assert.Equal(t, []string{"theme"}, tb.storage.Keys())
		assert.Equal(t, 0, c.Pending(), "no timer may survive the session")
	})

	t.Run("backend logout failure still ends locally", func(t *testing.T) {
		backend := &fakeBackend{logoutErr: errNetwork}
		tb := newTab(t, backend, clock.NewFake(epoch), testConfig())
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))

		tb.mgr.EndSession(context.Background(), session.ReasonManualLogout)
		assert.False(t, tb.mgr.State().IsAuthenticated)
		assert.Empty(t, tb.storage.Keys())
	})

	t.Run("no callbacks after end", func(t *testing.T) {
		c := clock.NewFake(epoch)
		tb := newTab(t, &fakeBackend{}, c, testConfig())
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))
		tb.mgr.EndSession(context.Background(), session.ReasonManualLogout)
		before := len(tb.snapshots.all())

		tb.input.Emit(activity.KeyDown)
		tb.page.Emit(lifecycle.Event{Kind: lifecycle.VisibilityChange, Visible: true})
		c.Advance(time.Hour)

		assert.Len(t, tb.snapshots.all(), before)
		assert.Equal(t, 0, tb.input.Listeners())
		assert.Equal(t, 0, tb.page.Listeners())
	})
}

func TestManager_IdleAndWarning(t *testing.T) {
	t.Run("idle edge then activity resumes", func(t *testing.T) {
		c := clock.NewFake(epoch)
		tb := newTab(t, &fakeBackend{}, c, testConfig())
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))

		c.Advance(time.Minute - time.Second)
		assert.False(t, tb.mgr.State().IsIdle)

		c.Advance(time.Second)
		st := tb.mgr.State()
		assert.Equal(t, session.PhaseIdle, st.Phase)
		assert.True(t, st.IsIdle)
		assert.False(t, st.ShowTimeoutWarning)

		tb.input.Emit(activity.Scroll)
		st = tb.mgr.State()
		assert.Equal(t, session.PhaseActive, st.Phase)
		assert.False(t, st.IsIdle)
		assert.Equal(t, c.Now(), st.LastActivity)
	})

	t.Run("warning precedes timeout", func(t *testing.T) {
		cfg := session.Options{IdleTimeoutMinutes: 30, WarnBeforeTimeoutMinutes: 5}.Config()
		c := clock.NewFake(epoch)
		backend := &fakeBackend{}
		tb := newTab(t, backend, c, cfg)
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))

		// The idle edge is T=0 for the countdown below.
		c.Advance(30 * time.Minute)
		require.True(t, tb.mgr.State().IsIdle)

		c.Advance(25*time.Minute - time.Second)
		assert.False(t, tb.mgr.State().ShowTimeoutWarning)

		c.Advance(time.Second)
		st := tb.mgr.State()
		assert.Equal(t, session.PhaseWarning, st.Phase)
		assert.True(t, st.ShowTimeoutWarning)
		assert.True(t, st.IsIdle)
		assert.Equal(t, 300, st.TimeUntilTimeout)

		c.Advance(5*time.Minute - time.Second)
		st = tb.mgr.State()
		assert.True(t, st.IsAuthenticated)
		assert.Equal(t, 1, st.TimeUntilTimeout)

		c.Advance(time.Second)
		assert.False(t, tb.mgr.State().IsAuthenticated)
		assert.Equal(t, []session.Reason{session.ReasonTimeout}, tb.ends.all())
		assert.Positive(t, backend.heartbeatCount(), "heartbeats keep running while idle")
	})

	t.Run("warning window equal to idle window starts at once", func(t *testing.T) {
		cfg := session.Options{IdleTimeoutMinutes: 1, WarnBeforeTimeoutMinutes: 1, HeartbeatIntervalMinutes: 5}.Config()
		c := clock.NewFake(epoch)
		tb := newTab(t, &fakeBackend{}, c, cfg)
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))

		c.Advance(60 * time.Second)
		st := tb.mgr.State()
		assert.True(t, st.IsIdle)
		assert.True(t, st.ShowTimeoutWarning)
		assert.Equal(t, 60, st.TimeUntilTimeout)

		// Idle and warning arrive in one snapshot.
		var idleOnly int
		for _, s := range tb.snapshots.all() {
			if s.IsIdle && !s.ShowTimeoutWarning {
				idleOnly++
			}
		}
		assert.Zero(t, idleOnly)

		c.Advance(30 * time.Second)
		assert.Equal(t, 30, tb.mgr.State().TimeUntilTimeout)

		c.Advance(30 * time.Second)
		assert.False(t, tb.mgr.State().IsAuthenticated)
		assert.Equal(t, []session.Reason{session.ReasonTimeout}, tb.ends.all())

		countdown := []int{}
		for _, s := range tb.snapshots.all() {
			if s.ShowTimeoutWarning {
				countdown = append(countdown, s.TimeUntilTimeout)
			}
		}
		require.Len(t, countdown, 61)
		assert.Equal(t, 60, countdown[0])
		assert.Equal(t, 0, countdown[60])
	})

	t.Run("activity during warning cancels it", func(t *testing.T) {
		c := clock.NewFake(epoch)
		tb := newTab(t, &fakeBackend{}, c, testConfig())
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))

		c.Advance(time.Minute + 30*time.Second)
		require.True(t, tb.mgr.State().ShowTimeoutWarning)

		tb.input.Emit(activity.PointerMove)
		st := tb.mgr.State()
		assert.Equal(t, session.PhaseActive, st.Phase)
		assert.False(t, st.ShowTimeoutWarning)
		assert.Zero(t, st.TimeUntilTimeout)

		c.Advance(50 * time.Second)
		assert.True(t, tb.mgr.State().IsAuthenticated)
		assert.Empty(t, tb.ends.all())
	})

	t.Run("zero warning window ends without countdown", func(t *testing.T) {
		cfg := testConfig()
		cfg.WarnBeforeTimeout = 0
		c := clock.NewFake(epoch)
		tb := newTab(t, &fakeBackend{}, c, cfg)
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))

		c.Advance(2*time.Minute - time.Second)
		assert.True(t, tb.mgr.State().IsAuthenticated)
		c.Advance(time.Second)
		assert.False(t, tb.mgr.State().IsAuthenticated)
		for _, s := range tb.snapshots.all() {
			assert.False(t, s.ShowTimeoutWarning)
		}
	})

	t.Run("snapshots keep invariants", func(t *testing.T) {
		c := clock.NewFake(epoch)
		tb := newTab(t, &fakeBackend{}, c, testConfig())
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))
		c.Advance(3 * time.Minute)

		for _, s := range tb.snapshots.all() {
			assert.Equal(t, s.IsAuthenticated, s.SessionToken != "")
			if s.ShowTimeoutWarning {
				assert.True(t, s.IsIdle)
			}
		}
	})
}

func TestManager_ExtendSession(t *testing.T) {
	t.Run("clears warning and resets idle countdown", func(t *testing.T) {
		c := clock.NewFake(epoch)
		tb := newTab(t, &fakeBackend{}, c, testConfig())
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))

		c.Advance(time.Minute + 45*time.Second)
		require.True(t, tb.mgr.State().ShowTimeoutWarning)

		require.NoError(t, tb.mgr.ExtendSession(context.Background()))
		st := tb.mgr.State()
		assert.Equal(t, session.PhaseActive, st.Phase)
		assert.False(t, st.IsIdle)
		assert.Equal(t, c.Now(), st.LastActivity)

		c.Advance(time.Minute - time.Second)
		assert.False(t, tb.mgr.State().IsIdle)
		c.Advance(time.Second)
		assert.True(t, tb.mgr.State().IsIdle)
	})

	t.Run("requires a session", func(t *testing.T) {
		tb := newTab(t, &fakeBackend{}, clock.NewFake(epoch), testConfig())
		assert.ErrorIs(t, tb.mgr.ExtendSession(context.Background()), session.ErrNotAuthenticated)
	})
}

func TestManager_Heartbeat(t *testing.T) {
	t.Run("server revocation wins over local activity", func(t *testing.T) {
		backend := &fakeBackend{}
		c := clock.NewFake(epoch)
		cfg := testConfig()
		cfg.IdleTimeout = time.Hour
		cfg.HeartbeatInterval = time.Minute
		tb := newTab(t, backend, c, cfg)
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))

		c.Advance(30 * time.Second)
		tb.input.Emit(activity.KeyDown)
		require.Equal(t, session.PhaseActive, tb.mgr.State().Phase)

		backend.setHeartbeat(func(string) (session.HeartbeatResult, error) {
			return session.HeartbeatResult{Revoked: true}, nil
		})
		c.Advance(30 * time.Second)

		assert.Equal(t, session.PhaseAnonymous, tb.mgr.State().Phase)
		assert.Equal(t, []session.Reason{session.ReasonSessionInvalidated}, tb.ends.all())
	})

	t.Run("transient failure keeps session and retries", func(t *testing.T) {
		backend := &fakeBackend{}
		backend.setHeartbeat(func(string) (session.HeartbeatResult, error) {
			return session.HeartbeatResult{}, errNetwork
		})
		c := clock.NewFake(epoch)
		cfg := testConfig()
		cfg.IdleTimeout = time.Hour
		cfg.HeartbeatInterval = time.Minute
		tb := newTab(t, backend, c, cfg)
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))

		c.Advance(3 * time.Minute)
		assert.True(t, tb.mgr.State().IsAuthenticated)
		assert.Equal(t, 3, backend.heartbeatCount())
	})

	t.Run("valid response slides expiry", func(t *testing.T) {
		backend := &fakeBackend{}
		next := epoch.Add(2 * time.Hour)
		backend.setHeartbeat(func(string) (session.HeartbeatResult, error) {
			return session.HeartbeatResult{Valid: true, ExpiresAt: next}, nil
		})
		c := clock.NewFake(epoch)
		cfg := testConfig()
		cfg.IdleTimeout = time.Hour
		cfg.HeartbeatInterval = time.Minute
		tb := newTab(t, backend, c, cfg)
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))

		c.Advance(time.Minute)
		assert.Equal(t, next, tb.mgr.State().ExpiresAt)
	})

	t.Run("stale completion is discarded", func(t *testing.T) {
		backend := &fakeBackend{}
		c := clock.NewFake(epoch)
		cfg := testConfig()
		cfg.IdleTimeout = time.Hour
		cfg.HeartbeatInterval = time.Minute
		tb := newTab(t, backend, c, cfg)
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))
		first := tb.mgr.Token()

		var once sync.Once
		backend.setHeartbeat(func(token string) (session.HeartbeatResult, error) {
			if token != first {
				return session.HeartbeatResult{Valid: true}, nil
			}
			// The session is replaced while this heartbeat is in flight.
			once.Do(func() {
				tb.mgr.EndSession(context.Background(), session.ReasonManualLogout)
				require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))
			})
			return session.HeartbeatResult{Revoked: true}, nil
		})

		c.Advance(time.Minute)
		st := tb.mgr.State()
		assert.True(t, st.IsAuthenticated)
		assert.NotEqual(t, first, st.SessionToken)
		assert.Equal(t, []session.Reason{session.ReasonManualLogout}, tb.ends.all())
	})
}

func TestManager_RestoreSession(t *testing.T) {
	t.Run("restores verified session", func(t *testing.T) {
		backend := &fakeBackend{}
		c := clock.NewFake(epoch)
		tb := newTab(t, backend, c, testConfig())
		tb.storage.Set(session.KeySessionToken, "stored-token")
		tb.storage.Set(session.KeyUserID, "user-1")
		tb.storage.Set(session.KeySessionID, "sess-9")

		require.NoError(t, tb.mgr.RestoreSession(context.Background()))
		st := tb.mgr.State()
		assert.True(t, st.IsAuthenticated)
		assert.Equal(t, "stored-token", st.SessionToken)
		assert.Equal(t, "sess-9", st.SessionID)
		assert.Empty(t, backend.registrations())
	})

	t.Run("nothing stored", func(t *testing.T) {
		tb := newTab(t, &fakeBackend{}, clock.NewFake(epoch), testConfig())
		assert.ErrorIs(t, tb.mgr.RestoreSession(context.Background()), session.ErrNoStoredSession)
	})

	t.Run("failed verification clears token and allows fresh start", func(t *testing.T) {
		backend := &fakeBackend{}
		backend.setHeartbeat(func(token string) (session.HeartbeatResult, error) {
			if token == "stale" {
				return session.HeartbeatResult{Expired: true}, nil
			}
			return session.HeartbeatResult{Valid: true}, nil
		})
		c := clock.NewFake(epoch)
		tb := newTab(t, backend, c, testConfig())
		tb.storage.Set(session.KeySessionToken, "stale")
		tb.storage.Set(session.KeyUserID, "user-1")

		err := tb.mgr.RestoreSession(context.Background())
		require.ErrorIs(t, err, session.ErrSessionInvalidated)
		assert.Empty(t, tb.storage.Keys())
		assert.False(t, tb.mgr.State().IsAuthenticated)

		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))
		st := tb.mgr.State()
		assert.True(t, st.IsAuthenticated)
		assert.NotEqual(t, "stale", st.SessionToken)
		assert.Equal(t, "sess-1", st.SessionID)
	})

	t.Run("network failure counts as failure", func(t *testing.T) {
		backend := &fakeBackend{}
		backend.setHeartbeat(func(string) (session.HeartbeatResult, error) {
			return session.HeartbeatResult{}, errNetwork
		})
		tb := newTab(t, backend, clock.NewFake(epoch), testConfig())
		tb.storage.Set(session.KeySessionToken, "tok")
		tb.storage.Set(session.KeyUserID, "user-1")

		assert.ErrorIs(t, tb.mgr.RestoreSession(context.Background()), session.ErrHeartbeat)
		assert.Empty(t, tb.storage.Keys())
	})
}

func TestManager_PageLifecycle(t *testing.T) {
	t.Run("unload sends beacon and ends locally", func(t *testing.T) {
		backend := &fakeBackend{}
		beacon := &beaconLog{}
		c := clock.NewFake(epoch)
		tb := newTab(t, backend, c, testConfig(), session.WithBeacon(beacon))
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))
		token := tb.mgr.Token()

		tb.page.Emit(lifecycle.Event{Kind: lifecycle.BeforeUnload})

		assert.Equal(t, []lifecycle.LogoutPayload{{Token: token, Reason: "browser_close"}}, beacon.all())
		assert.False(t, tb.mgr.State().IsAuthenticated)
		assert.Equal(t, []session.Reason{session.ReasonBrowserClose}, tb.ends.all())
		assert.Empty(t, backend.logoutCalls(), "the beacon carries the logout")
		assert.Eventually(t, func() bool { return tb.page.Listeners() == 0 }, time.Second, 5*time.Millisecond)
	})

	t.Run("back/forward cache keeps session", func(t *testing.T) {
		beacon := &beaconLog{}
		tb := newTab(t, &fakeBackend{}, clock.NewFake(epoch), testConfig(), session.WithBeacon(beacon))
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))

		tb.page.Emit(lifecycle.Event{Kind: lifecycle.PageHide, Persisted: true})
		assert.True(t, tb.mgr.State().IsAuthenticated)
		assert.Empty(t, beacon.all())
	})

	t.Run("disabled browser close logout", func(t *testing.T) {
		cfg := testConfig()
		cfg.LogoutOnBrowserClose = false
		beacon := &beaconLog{}
		tb := newTab(t, &fakeBackend{}, clock.NewFake(epoch), cfg, session.WithBeacon(beacon))
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))

		tb.page.Emit(lifecycle.Event{Kind: lifecycle.BeforeUnload})
		assert.True(t, tb.mgr.State().IsAuthenticated)
		assert.Empty(t, beacon.all())
	})

	t.Run("visible tab resumes from idle", func(t *testing.T) {
		c := clock.NewFake(epoch)
		tb := newTab(t, &fakeBackend{}, c, testConfig())
		require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))
		c.Advance(time.Minute + 40*time.Second)
		require.True(t, tb.mgr.State().ShowTimeoutWarning)

		tb.page.Emit(lifecycle.Event{Kind: lifecycle.VisibilityChange, Visible: false})
		assert.True(t, tb.mgr.State().IsIdle)

		tb.page.Emit(lifecycle.Event{Kind: lifecycle.VisibilityChange, Visible: true})
		st := tb.mgr.State()
		assert.Equal(t, session.PhaseActive, st.Phase)
		assert.False(t, st.ShowTimeoutWarning)
	})
}

func TestManager_CrossTab(t *testing.T) {
	setup := func(t *testing.T, cfg session.Config) (*tab, *tab, *fakeBackend, *clock.Fake) {
		t.Helper()
		backend := &fakeBackend{}
		c := clock.NewFake(epoch)
		channel := broadcast.NewMemoryChannel(32)
		t.Cleanup(func() { _ = channel.Close() })

		a := newTab(t, backend, c, cfg, session.WithBus(broadcast.NewBus(
			broadcast.WithPrimary(channel.Endpoint()), broadcast.WithTabID("tab-a"))))
		b := newTab(t, backend, c, cfg, session.WithBus(broadcast.NewBus(
			broadcast.WithPrimary(channel.Endpoint()), broadcast.WithTabID("tab-b"))))

		require.NoError(t, a.mgr.StartSession(context.Background(), "user-1"))
		require.NoError(t, b.mgr.StartSession(context.Background(), "user-1"))
		return a, b, backend, c
	}

	t.Run("logout propagates without second network logout", func(t *testing.T) {
		a, b, backend, _ := setup(t, testConfig())
		tokenA := a.mgr.Token()

		a.mgr.EndSession(context.Background(), session.ReasonManualLogout)

		require.Eventually(t, func() bool { return !b.mgr.State().IsAuthenticated }, time.Second, 5*time.Millisecond)
		assert.Equal(t, []session.Reason{session.ReasonCrossTabLogout}, b.ends.all())
		assert.Equal(t, []logoutCall{{token: tokenA, reason: session.ReasonManualLogout}}, backend.logoutCalls())
		assert.Equal(t, "tab-b", b.mgr.TabID())

		// Tab A does not react to its own logout message.
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, []session.Reason{session.ReasonManualLogout}, a.ends.all())
	})

	t.Run("tab close leaves siblings signed in", func(t *testing.T) {
		a, b, _, _ := setup(t, testConfig())

		a.page.Emit(lifecycle.Event{Kind: lifecycle.BeforeUnload})
		require.False(t, a.mgr.State().IsAuthenticated)

		time.Sleep(20 * time.Millisecond)
		assert.True(t, b.mgr.State().IsAuthenticated)
	})

	t.Run("sync disabled ignores sibling logout", func(t *testing.T) {
		cfg := testConfig()
		cfg.SyncLogoutAcrossTabs = false
		a, b, _, _ := setup(t, cfg)

		a.mgr.EndSession(context.Background(), session.ReasonManualLogout)
		time.Sleep(20 * time.Millisecond)
		assert.True(t, b.mgr.State().IsAuthenticated)
	})

	t.Run("extend in one tab clears warning in the other", func(t *testing.T) {
		a, b, _, c := setup(t, testConfig())

		c.Advance(time.Minute + 40*time.Second)
		require.True(t, a.mgr.State().ShowTimeoutWarning)
		require.True(t, b.mgr.State().ShowTimeoutWarning)

		require.NoError(t, a.mgr.ExtendSession(context.Background()))
		require.Eventually(t, func() bool {
			return b.mgr.State().Phase == session.PhaseActive
		}, time.Second, 5*time.Millisecond)
		assert.False(t, b.mgr.State().ShowTimeoutWarning)
	})

	t.Run("activity edge in one tab resumes the other", func(t *testing.T) {
		a, b, _, c := setup(t, testConfig())
		c.Advance(time.Minute)
		require.True(t, b.mgr.State().IsIdle)

		a.input.Emit(activity.Click)
		require.Eventually(t, func() bool { return !b.mgr.State().IsIdle }, time.Second, 5*time.Millisecond)
	})
}

func TestManager_Close(t *testing.T) {
	c := clock.NewFake(epoch)
	tb := newTab(t, &fakeBackend{}, c, testConfig())
	require.NoError(t, tb.mgr.StartSession(context.Background(), "user-1"))

	require.NoError(t, tb.mgr.Close())
	require.NoError(t, tb.mgr.Close())

	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 0, tb.input.Listeners())
	token, ok := tb.storage.Get(session.KeySessionToken)
	assert.True(t, ok, "stored session survives close for restore")
	assert.NotEmpty(t, token)
	assert.ErrorIs(t, tb.mgr.StartSession(context.Background(), "user-1"), session.ErrClosed)
	assert.ErrorIs(t, tb.mgr.RestoreSession(context.Background()), session.ErrClosed)
}
