package lifecycle_test

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/pkg/lifecycle"
)

type sentBeacon struct {
	url         string
	contentType string
	body        []byte
}

type fakeBeacon struct {
	mu   sync.Mutex
	sent []sentBeacon
	ok   bool
}

func (b *fakeBeacon) Send(url, contentType string, body []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentBeacon{url: url, contentType: contentType, body: body})
	return b.ok
}

func (b *fakeBeacon) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func newGuard(token string, opts ...lifecycle.Option) (*lifecycle.Guard, *lifecycle.Emitter, *fakeBeacon, *int) {
	em := lifecycle.NewEmitter()
	beacon := &fakeBeacon{ok: true}
	unloads := new(int)
	all := append([]lifecycle.Option{
		lifecycle.WithBeacon(beacon),
		lifecycle.WithEndpoint("https://api.example.com/sessions/logout"),
		lifecycle.WithTokenFunc(func() string { return token }),
		lifecycle.WithOnBeforeUnload(func() { *unloads++ }),
	}, opts...)
	return lifecycle.NewGuard(em, all...), em, beacon, unloads
}

func TestGuard_Unload(t *testing.T) {
	t.Run("before unload runs callback and sends beacon", func(t *testing.T) {
		g, em, beacon, unloads := newGuard("tok-1")
		g.Start()
		defer g.Stop()

		em.Emit(lifecycle.Event{Kind: lifecycle.BeforeUnload})

		assert.Equal(t, 1, *unloads)
		require.Equal(t, 1, beacon.count())
		sent := beacon.sent[0]
		assert.Equal(t, "https://api.example.com/sessions/logout", sent.url)
		assert.Equal(t, "application/json", sent.contentType)

		var payload lifecycle.LogoutPayload
		require.NoError(t, json.Unmarshal(sent.body, &payload))
		assert.Equal(t, lifecycle.LogoutPayload{Token: "tok-1", Reason: "browser_close"}, payload)
	})

	t.Run("no token means no beacon", func(t *testing.T) {
		g, em, beacon, unloads := newGuard("")
		g.Start()
		defer g.Stop()

		em.Emit(lifecycle.Event{Kind: lifecycle.BeforeUnload})
		assert.Equal(t, 1, *unloads)
		assert.Equal(t, 0, beacon.count())
	})

	t.Run("token is read before the callback clears it", func(t *testing.T) {
		token := "tok-2"
		em := lifecycle.NewEmitter()
		beacon := &fakeBeacon{ok: true}
		g := lifecycle.NewGuard(em,
			lifecycle.WithBeacon(beacon),
			lifecycle.WithEndpoint("https://api.example.com/logout"),
			lifecycle.WithTokenFunc(func() string { return token }),
			lifecycle.WithOnBeforeUnload(func() { token = "" }),
		)
		g.Start()
		defer g.Stop()

		em.Emit(lifecycle.Event{Kind: lifecycle.BeforeUnload})
		require.Equal(t, 1, beacon.count())
		assert.Contains(t, string(beacon.sent[0].body), "tok-2")
	})

	t.Run("persisted page hide is suppressed", func(t *testing.T) {
		g, em, beacon, unloads := newGuard("tok")
		g.Start()
		defer g.Stop()

		em.Emit(lifecycle.Event{Kind: lifecycle.PageHide, Persisted: true})
		assert.Equal(t, 0, *unloads)
		assert.Equal(t, 0, beacon.count())

		em.Emit(lifecycle.Event{Kind: lifecycle.PageHide})
		assert.Equal(t, 1, *unloads)
		assert.Equal(t, 1, beacon.count())
	})

	t.Run("one dispatch per unload cycle", func(t *testing.T) {
		g, em, beacon, unloads := newGuard("tok")
		g.Start()
		defer g.Stop()

		em.Emit(lifecycle.Event{Kind: lifecycle.BeforeUnload})
		em.Emit(lifecycle.Event{Kind: lifecycle.PageHide})
		assert.Equal(t, 1, *unloads)
		assert.Equal(t, 1, beacon.count())

		em.Emit(lifecycle.Event{Kind: lifecycle.PageShow, Persisted: true})
		em.Emit(lifecycle.Event{Kind: lifecycle.BeforeUnload})
		assert.Equal(t, 2, *unloads)
		assert.Equal(t, 2, beacon.count())
	})

	t.Run("failed beacon does not panic", func(t *testing.T) {
		g, em, beacon, _ := newGuard("tok")
		beacon.ok = false
		g.Start()
		defer g.Stop()

		assert.NotPanics(t, func() { em.Emit(lifecycle.Event{Kind: lifecycle.BeforeUnload}) })
		assert.Equal(t, 1, beacon.count())
	})
}

func TestGuard_Visibility(t *testing.T) {
	var seen []bool
	g, em, _, unloads := newGuard("tok", lifecycle.WithOnVisibilityChange(func(v bool) { seen = append(seen, v) }))
	g.Start()
	defer g.Stop()

	em.Emit(lifecycle.Event{Kind: lifecycle.VisibilityChange, Visible: false})
	em.Emit(lifecycle.Event{Kind: lifecycle.VisibilityChange, Visible: true})
	assert.Equal(t, []bool{false, true}, seen)
	assert.Equal(t, 0, *unloads)
}

func TestGuard_StartStop(t *testing.T) {
	t.Run("idempotent attach and detach", func(t *testing.T) {
		g, em, _, _ := newGuard("tok")
		g.Start()
		g.Start()
		assert.Equal(t, 1, em.Listeners())
		assert.True(t, g.IsRunning())

		g.Stop()
		g.Stop()
		assert.Equal(t, 0, em.Listeners())
		assert.False(t, g.IsRunning())
	})

	t.Run("no callback after stop", func(t *testing.T) {
		var visible int
		em := lifecycle.NewEmitter()
		beacon := &fakeBeacon{ok: true}
		unloads := 0
		var handle func(lifecycle.Event)
		spy := spySource{em: em, capture: func(fn func(lifecycle.Event)) { handle = fn }}
		g := lifecycle.NewGuard(spy,
			lifecycle.WithBeacon(beacon),
			lifecycle.WithEndpoint("https://api.example.com/logout"),
			lifecycle.WithTokenFunc(func() string { return "tok" }),
			lifecycle.WithOnBeforeUnload(func() { unloads++ }),
			lifecycle.WithOnVisibilityChange(func(bool) { visible++ }),
		)
		g.Start()
		g.Stop()

		require.NotNil(t, handle)
		handle(lifecycle.Event{Kind: lifecycle.BeforeUnload})
		handle(lifecycle.Event{Kind: lifecycle.VisibilityChange, Visible: true})
		assert.Equal(t, 0, unloads)
		assert.Equal(t, 0, visible)
		assert.Equal(t, 0, beacon.count())
	})
}

type spySource struct {
	em      *lifecycle.Emitter
	capture func(func(lifecycle.Event))
}

func (s spySource) Subscribe(fn func(lifecycle.Event)) func() {
	s.capture(fn)
	return s.em.Subscribe(fn)
}
