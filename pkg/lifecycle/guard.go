package lifecycle

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/sessionkit/pkg/logger"
)

// ReasonBrowserClose is the logout reason carried by unload beacons.
const ReasonBrowserClose = "browser_close"

// LogoutPayload is the body of logout requests and beacons.
type LogoutPayload struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// Guard turns lifecycle events into at most one unload dispatch per page
// lifetime. Showing the page again or making it visible re-arms the guard.
type Guard struct {
	source         Source
	beacon         Beacon
	endpoint       string
	token          func() string
	onBeforeUnload func()
	onVisibility   func(visible bool)
	logger         *slog.Logger

	// cbMu serializes callbacks with Stop.
	cbMu sync.Mutex

	mu          sync.Mutex
	running     bool
	gen         uint64
	dispatched  bool
	unsubscribe func()
}

// Option configures a Guard.
type Option func(*Guard)

// WithBeacon sets the transport used for unload notifications.
func WithBeacon(b Beacon) Option {
	return func(g *Guard) { g.beacon = b }
}

// WithEndpoint sets the logout URL the beacon is sent to.
func WithEndpoint(url string) Option {
	return func(g *Guard) { g.endpoint = url }
}

// WithTokenFunc sets the accessor for the current session token. An empty
// token means there is nothing to log out and no beacon is sent.
func WithTokenFunc(fn func() string) Option {
	return func(g *Guard) { g.token = fn }
}

// WithOnBeforeUnload sets the callback invoked when the page is about to be discarded.
func WithOnBeforeUnload(fn func()) Option {
	return func(g *Guard) { g.onBeforeUnload = fn }
}

// WithOnVisibilityChange sets the callback invoked on visibility transitions.
func WithOnVisibilityChange(fn func(visible bool)) Option {
	return func(g *Guard) { g.onVisibility = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger.OrDiscard(l) }
}

// NewGuard creates a stopped guard observing source.
func NewGuard(source Source, opts ...Option) *Guard {
	g := &Guard{
		source: source,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start attaches to the source. It is a no-op when already running.
func (g *Guard) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return
	}
	g.running = true
	g.dispatched = false
	g.gen++
	if g.source != nil {
		g.unsubscribe = g.source.Subscribe(g.handle)
	}
}

// Stop detaches from the source. It is idempotent and no callback runs
// after it returns.
func (g *Guard) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	g.gen++
	unsub := g.unsubscribe
	g.unsubscribe = nil
	g.mu.Unlock()

	if unsub != nil {
		unsub()
	}

	g.cbMu.Lock()
	g.cbMu.Unlock()
}

// IsRunning reports whether the guard is attached.
func (g *Guard) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *Guard) handle(evt Event) {
	switch evt.Kind {
	case BeforeUnload:
		g.unload()
	case PageHide:
		if evt.Persisted {
			g.logger.Debug("page kept in back/forward cache, session preserved",
				logger.Component("lifecycle"),
			)
			return
		}
		g.unload()
	case PageShow:
		g.rearm()
	case VisibilityChange:
		if evt.Visible {
			g.rearm()
		}
		g.visibility(evt.Visible)
	}
}

func (g *Guard) rearm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dispatched = false
}

func (g *Guard) visibility(visible bool) {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	gen := g.gen
	g.mu.Unlock()

	if g.onVisibility == nil {
		return
	}
	g.fire(gen, func() { g.onVisibility(visible) })
}

func (g *Guard) unload() {
	g.mu.Lock()
	if !g.running || g.dispatched {
		g.mu.Unlock()
		return
	}
	g.dispatched = true
	gen := g.gen
	g.mu.Unlock()

	g.fire(gen, func() {
		// Captured first: the owner callback typically clears the session.
		var token string
		if g.token != nil {
			token = g.token()
		}

		if g.onBeforeUnload != nil {
			g.onBeforeUnload()
		}

		if token == "" || g.beacon == nil || g.endpoint == "" {
			return
		}
		body, err := json.Marshal(LogoutPayload{Token: token, Reason: ReasonBrowserClose})
		if err != nil {
			return
		}
		if !g.beacon.Send(g.endpoint, "application/json", body) {
			g.logger.Warn("unload beacon was not queued",
				logger.Component("lifecycle"),
				logger.Reason(ReasonBrowserClose),
			)
		}
	})
}

func (g *Guard) fire(gen uint64, fn func()) {
	g.cbMu.Lock()
	defer g.cbMu.Unlock()

	g.mu.Lock()
	live := g.running && g.gen == gen
	g.mu.Unlock()
	if live {
		fn()
	}
}
