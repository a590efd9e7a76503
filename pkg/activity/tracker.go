// Package activity turns raw user interaction events into edge-triggered idle
// and active notifications.
package activity

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/clock"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
)

// DefaultThrottle bounds how often the auxiliary activity callback runs.
const DefaultThrottle = time.Second

// Tracker watches a Source and reports ACTIVE -> IDLE after idleTimeout of
// silence and IDLE -> ACTIVE on the next qualifying event. Each edge invokes
// its callback exactly once.
//
// Callbacks run while the tracker holds its callback lock, so they must not
// call Start or Stop on the same tracker.
type Tracker struct {
	source      Source
	idleTimeout time.Duration
	throttle    time.Duration
	clock       clock.Clock
	logger      *slog.Logger
	onIdle      func()
	onActive    func()
	onActivity  func(time.Time)

	// cbMu serializes callbacks with Stop: once Stop returns no callback runs.
	cbMu sync.Mutex

	mu            sync.Mutex
	running       bool
	idle          bool
	gen           uint64
	timer         clock.Timer
	timerSeq      uint64
	lastActivity  time.Time
	lastProcessed time.Time
	unsubscribe   func()
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithThrottle sets the window in which at most one activity update is processed.
func WithThrottle(d time.Duration) Option {
	return func(t *Tracker) { t.throttle = d }
}

// WithOnIdle sets the callback for the ACTIVE -> IDLE edge.
func WithOnIdle(fn func()) Option {
	return func(t *Tracker) { t.onIdle = fn }
}

// WithOnActive sets the callback for the IDLE -> ACTIVE edge.
func WithOnActive(fn func()) Option {
	return func(t *Tracker) { t.onActive = fn }
}

// WithOnActivity sets a throttled callback receiving the time of observed activity.
func WithOnActivity(fn func(time.Time)) Option {
	return func(t *Tracker) { t.onActivity = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger.OrDiscard(l) }
}

// NewTracker creates a stopped tracker.
func NewTracker(source Source, idleTimeout time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		source:      source,
		idleTimeout: idleTimeout,
		throttle:    DefaultThrottle,
		clock:       clock.New(),
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start attaches the listener and begins the idle countdown. It is a no-op
// when already running.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.idle = false
	t.gen++
	t.lastActivity = t.clock.Now()
	t.lastProcessed = time.Time{}
	t.resetTimerLocked()
	if t.source != nil {
		// Events are delivered outside t.mu, so subscribing here cannot deadlock.
		t.unsubscribe = t.source.Subscribe(t.handle)
	}
	t.mu.Unlock()

	t.logger.Debug("activity tracker started",
		logger.Component("activity"),
		logger.Duration(t.idleTimeout),
	)
}

// Stop detaches the listener and cancels the idle countdown. It is
// idempotent. After Stop returns no callback fires.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	unsub := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	if unsub != nil {
		unsub()
	}

	// Barrier: wait for a callback that passed its liveness check before Stop.
	t.cbMu.Lock()
	t.cbMu.Unlock()

	t.logger.Debug("activity tracker stopped", logger.Component("activity"))
}

// Touch records a synthetic qualifying event.
func (t *Tracker) Touch() {
	t.handle(Focus)
}

// IsIdle reports whether the tracker is in the IDLE state.
func (t *Tracker) IsIdle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idle
}

// IsRunning reports whether the tracker is started.
func (t *Tracker) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// LastActivity returns the time of the last qualifying event.
func (t *Tracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

func (t *Tracker) handle(evt EventType) {
	if !Qualifies(evt) {
		return
	}

	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	t.lastActivity = now
	// The countdown restarts on every raw event regardless of throttling.
	t.resetTimerLocked()

	wasIdle := t.idle
	t.idle = false

	notifyActivity := t.onActivity != nil &&
		(t.lastProcessed.IsZero() || now.Sub(t.lastProcessed) >= t.throttle)
	if notifyActivity {
		t.lastProcessed = now
	}
	gen := t.gen
	t.mu.Unlock()

	if wasIdle {
		t.fire(gen, t.onActive)
	}
	if notifyActivity {
		t.fire(gen, func() { t.onActivity(now) })
	}
}

func (t *Tracker) resetTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timerSeq++
	seq := t.timerSeq
	t.timer = t.clock.AfterFunc(t.idleTimeout, func() { t.expire(seq) })
}

func (t *Tracker) expire(seq uint64) {
	t.mu.Lock()
	if !t.running || seq != t.timerSeq || t.idle {
		t.mu.Unlock()
		return
	}
	t.idle = true
	t.timer = nil
	gen := t.gen
	t.mu.Unlock()

	t.logger.Debug("user idle", logger.Component("activity"))
	t.fire(gen, t.onIdle)
}

func (t *Tracker) fire(gen uint64, fn func()) {
	if fn == nil {
		return
	}

	t.cbMu.Lock()
	defer t.cbMu.Unlock()

	t.mu.Lock()
	alive := t.running && t.gen == gen
	t.mu.Unlock()

	if alive {
		fn()
	}
}
