package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/activity"
	"github.com/dmitrymomot/sessionkit/pkg/broadcast"
	"github.com/dmitrymomot/sessionkit/pkg/clock"
	"github.com/dmitrymomot/sessionkit/pkg/device"
	"github.com/dmitrymomot/sessionkit/pkg/lifecycle"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/statemachine"
	"github.com/dmitrymomot/sessionkit/pkg/tabstore"
)

// Manager owns the session of one tab. Every transition goes through a
// single mutex guarded update path and listeners see each committed
// snapshot in order, or a newer one.
//
// Listeners must not start or end sessions synchronously. End hooks run
// outside every manager lock and may do so.
type Manager struct {
	backend    Backend
	config     Config
	storage    tabstore.Storage
	bus        *broadcast.Bus
	activity   activity.Source
	lifecycle  lifecycle.Source
	beacon     lifecycle.Beacon
	env        *device.Environment
	tokens     *device.TokenGenerator
	clock      clock.Clock
	logger     *slog.Logger
	namespaces []string

	ctx    context.Context
	cancel context.CancelFunc

	// opMu serializes start, restore and end including their backend calls.
	opMu sync.Mutex

	mu     sync.Mutex
	state  State
	phases *statemachine.Machine[Phase, trigger]
	epoch  uint64
	seq    uint64
	live   *liveSession
	closed bool

	emitMu  sync.Mutex
	emitted uint64

	subMu     sync.RWMutex
	nextSub   uint64
	listeners map[uint64]func(State)
	endHooks  map[uint64]func(Reason)
}

// liveSession holds the components bound to one session epoch. Fields are
// guarded by Manager.mu.
type liveSession struct {
	epoch     uint64
	tracker   *activity.Tracker
	guard     *lifecycle.Guard
	heartbeat clock.Timer
	warn      clock.Timer
	tick      clock.Timer
	unsubs    []func()
}

func (l *liveSession) stopTimers() {
	for _, t := range []clock.Timer{l.heartbeat, l.warn, l.tick} {
		if t != nil {
			t.Stop()
		}
	}
	l.heartbeat, l.warn, l.tick = nil, nil, nil
}

// New creates a Manager in the anonymous state.
func New(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:    backend,
		config:     DefaultConfig(),
		storage:    tabstore.NewMemory(),
		clock:      clock.New(),
		logger:     logger.Discard(),
		namespaces: []string{Namespace},
		state:      anonymousState(),
		phases:     newPhaseMachine(),
		listeners:  make(map[uint64]func(State)),
		endHooks:   make(map[uint64]func(Reason)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.config = m.config.normalized()
	if m.tokens == nil {
		m.tokens = device.NewTokenGenerator(device.WithTokenLogger(m.logger))
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// NewFromConfig creates a Manager with cfg.
func NewFromConfig(cfg Config, backend Backend, opts ...Option) *Manager {
	return New(backend, append([]Option{WithConfig(cfg)}, opts...)...)
}

// Config returns the effective session policy.
func (m *Manager) Config() Config {
	return m.config
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Token returns the current session token or an empty string.
func (m *Manager) Token() string {
	return m.State().SessionToken
}

// TabID returns the origin-tab identifier, empty without a bus.
func (m *Manager) TabID() string {
	if m.bus == nil {
		return ""
	}
	return m.bus.TabID()
}

// Subscribe registers fn for every state change and returns a function
// removing it.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.nextSub++
	id := m.nextSub
	m.listeners[id] = fn
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.listeners, id)
	}
}

// OnEnd registers fn to run after a session ended, outside any manager lock.
func (m *Manager) OnEnd(fn func(Reason)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.nextSub++
	id := m.nextSub
	m.endHooks[id] = fn
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.endHooks, id)
	}
}

// StartSession registers a new session for userID and starts every
// subordinate component. On ErrRegistration the manager stays anonymous.
// Starting a session for the user already signed in is a no-op; a different
// user ends the current session first.
func (m *Manager) StartSession(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.Join(ErrRegistration, errors.New("empty user id"))
	}

	m.opMu.Lock()
	var after func()
	defer func() {
		m.opMu.Unlock()
		if after != nil {
			after()
		}
	}()

	cur, err := m.current()
	if err != nil {
		return err
	}
	if cur.IsAuthenticated {
		if cur.UserID == userID {
			return nil
		}
		after = m.teardown(ctx, ReasonSignedOut)
	}

	info := device.Generate(m.env)
	token := m.tokens.Generate()

	reg, err := m.backend.Register(ctx, RegisterRequest{
		UserID:                userID,
		Token:                 token,
		Device:                info,
		IdleTimeout:           m.config.IdleTimeout,
		AbsoluteTimeout:       m.config.AbsoluteTimeout,
		MaxConcurrentSessions: m.config.MaxConcurrentSessions,
	})
	if err != nil {
		m.logger.WarnContext(ctx, "session registration failed",
			logger.Component("session"),
			logger.UserID(userID),
			logger.Error(err),
		)
		return errors.Join(ErrRegistration, err)
	}

	m.activate(userID, token, reg.SessionID, reg.ExpiresAt)

	m.logger.InfoContext(ctx, "session started",
		logger.Component("session"),
		logger.UserID(userID),
		logger.SessionID(reg.SessionID),
		slog.String("device", info.Label()),
		slog.Int("revoked_sessions", len(reg.RevokedSessionIDs)),
	)
	return nil
}

// RestoreSession resumes the session recorded in tab storage after the
// backend confirms it is still valid. Any failure clears the stored session.
func (m *Manager) RestoreSession(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	cur, err := m.current()
	if err != nil {
		return err
	}
	if cur.IsAuthenticated {
		return nil
	}

	token, _ := m.storage.Get(KeySessionToken)
	userID, _ := m.storage.Get(KeyUserID)
	if token == "" || userID == "" {
		m.clearStorage()
		return ErrNoStoredSession
	}

	res, err := m.backend.Heartbeat(ctx, token)
	if err != nil {
		m.clearStorage()
		m.logger.WarnContext(ctx, "stored session could not be verified",
			logger.Component("session"),
			logger.UserID(userID),
			logger.Error(err),
		)
		return errors.Join(ErrHeartbeat, err)
	}
	if res.Invalidated() {
		m.clearStorage()
		m.logger.InfoContext(ctx, "stored session is no longer valid",
			logger.Component("session"),
			logger.UserID(userID),
			slog.Bool("expired", res.Expired),
			slog.Bool("revoked", res.Revoked),
		)
		return ErrSessionInvalidated
	}

	sessionID, _ := m.storage.Get(KeySessionID)
	m.activate(userID, token, sessionID, res.ExpiresAt)

	m.logger.InfoContext(ctx, "session restored",
		logger.Component("session"),
		logger.UserID(userID),
		logger.SessionID(sessionID),
	)
	return nil
}

// EndSession moves to the anonymous state. It always succeeds locally and
// ending an anonymous manager is a no-op.
func (m *Manager) EndSession(ctx context.Context, reason Reason) {
	m.opMu.Lock()
	after := m.teardown(ctx, reason)
	m.opMu.Unlock()
	if after != nil {
		after()
	}
}

// ExtendSession marks the user active, cancels any pending warning and asks
// sibling tabs to do the same.
func (m *Manager) ExtendSession(ctx context.Context) error {
	m.mu.Lock()
	epoch, userID := m.epoch, m.state.UserID
	authenticated := m.state.IsAuthenticated
	m.mu.Unlock()

	if !authenticated || !m.markActive(epoch) {
		return ErrNotAuthenticated
	}
	if m.bus != nil {
		m.bus.Broadcast(ctx, broadcast.TypeRefresh, syncPayload{UserID: userID})
	}
	return nil
}

// Close stops every component without logging out. The stored session stays
// in tab storage so a later Manager can restore it.
func (m *Manager) Close() error {
	m.opMu.Lock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.opMu.Unlock()
		return nil
	}
	m.closed = true
	m.epoch++
	l := m.live
	m.live = nil
	var unsubs []func()
	if l != nil {
		l.stopTimers()
		unsubs = l.unsubs
	}
	m.mu.Unlock()

	if l != nil {
		l.tracker.Stop()
	}
	for _, unsub := range unsubs {
		unsub()
	}
	if m.bus != nil {
		m.bus.Stop()
	}
	m.cancel()
	m.opMu.Unlock()

	if l != nil && l.guard != nil {
		l.guard.Stop()
	}
	return nil
}

func (m *Manager) current() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return State{}, ErrClosed
	}
	if m.backend == nil {
		return State{}, ErrNoBackend
	}
	return m.state, nil
}

// activate binds a new epoch and starts its components. opMu must be held.
func (m *Manager) activate(userID, token, sessionID string, expiresAt time.Time) {
	m.storage.Set(KeySessionToken, token)
	m.storage.Set(KeyUserID, userID)
	if sessionID != "" {
		m.storage.Set(KeySessionID, sessionID)
	}
	if m.bus != nil {
		m.storage.Set(KeyTabID, m.bus.TabID())
	}

	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	m.phases.Reset()
	_, _, _ = m.phases.Fire(triggerStart)
	m.state = State{
		Phase:           PhaseActive,
		IsAuthenticated: true,
		UserID:          userID,
		SessionToken:    token,
		SessionID:       sessionID,
		ExpiresAt:       expiresAt,
		LastActivity:    m.clock.Now(),
	}

	l := &liveSession{epoch: epoch}
	l.tracker = activity.NewTracker(m.activity, m.config.IdleTimeout,
		activity.WithClock(m.clock),
		activity.WithLogger(m.logger),
		activity.WithOnIdle(func() { m.handleIdle(epoch) }),
		activity.WithOnActive(func() { m.handleActive(epoch) }),
		activity.WithOnActivity(func(at time.Time) { m.handleActivity(epoch, at) }),
	)
	if m.lifecycle != nil {
		l.guard = lifecycle.NewGuard(m.lifecycle,
			lifecycle.WithBeacon(m.beacon),
			lifecycle.WithEndpoint(m.config.LogoutEndpoint),
			lifecycle.WithTokenFunc(func() string { return m.unloadToken(epoch) }),
			lifecycle.WithOnBeforeUnload(func() { m.handleUnload(epoch) }),
			lifecycle.WithOnVisibilityChange(func(visible bool) { m.handleVisibility(epoch, visible) }),
			lifecycle.WithLogger(m.logger),
		)
	}
	l.heartbeat = m.clock.AfterFunc(m.config.HeartbeatInterval, func() { m.beat(epoch) })
	m.live = l
	seq, st := m.commitLocked()
	m.mu.Unlock()

	m.publish(seq, st)

	l.tracker.Start()
	if l.guard != nil {
		l.guard.Start()
	}
	if m.bus != nil {
		unsubs := m.subscribeBus(epoch)
		m.mu.Lock()
		l.unsubs = unsubs
		m.mu.Unlock()

		if err := m.bus.Start(m.ctx); err != nil {
			m.logger.Info("cross-tab sync unavailable",
				logger.Component("session"),
				logger.Error(err),
			)
		}
	}
}

func (m *Manager) subscribeBus(epoch uint64) []func() {
	unsubs := []func(){
		m.bus.On(broadcast.TypeRefresh, func(_ context.Context, msg broadcast.Message) {
			m.handleRemoteActivity(epoch, msg)
		}),
		m.bus.On(broadcast.TypeActivity, func(_ context.Context, msg broadcast.Message) {
			m.handleRemoteActivity(epoch, msg)
		}),
		m.bus.On(broadcast.TypeTimeoutWarning, func(_ context.Context, msg broadcast.Message) {
			m.logger.Debug("sibling tab is about to time out",
				logger.Component("session"),
				logger.TabID(msg.TabID),
			)
		}),
	}
	if m.config.SyncLogoutAcrossTabs {
		unsubs = append(unsubs, m.bus.On(broadcast.TypeLogout, func(_ context.Context, msg broadcast.Message) {
			m.handleRemoteLogout(epoch, msg)
		}))
	}
	return unsubs
}

// teardown ends the current session. opMu must be held. The returned
// function, if any, must be called after opMu is released.
func (m *Manager) teardown(ctx context.Context, reason Reason) func() {
	m.mu.Lock()
	if !m.state.IsAuthenticated {
		m.mu.Unlock()
		return nil
	}
	prev := m.state
	l := m.live
	m.live = nil
	m.epoch++
	_, _, _ = m.phases.Fire(triggerEnd)
	m.state = anonymousState()
	var unsubs []func()
	if l != nil {
		l.stopTimers()
		unsubs = l.unsubs
	}
	seq, st := m.commitLocked()
	m.mu.Unlock()

	m.publish(seq, st)

	if l != nil {
		l.tracker.Stop()
	}
	for _, unsub := range unsubs {
		unsub()
	}
	if m.bus != nil {
		m.bus.Stop()
	}

	if notifiesBackend(reason) && m.backend != nil {
		res, err := m.backend.Logout(ctx, prev.SessionToken, reason)
		switch {
		case err != nil:
			m.logger.WarnContext(ctx, "backend logout failed",
				logger.Component("session"),
				logger.UserID(prev.UserID),
				logger.Reason(reason),
				logger.Error(errors.Join(ErrLogout, err)),
			)
		case res.AlreadyLoggedOut:
			m.logger.DebugContext(ctx, "session was already logged out",
				logger.Component("session"),
				logger.SessionID(prev.SessionID),
			)
		}
	}

	m.clearStorage()

	if m.bus != nil && m.config.SyncLogoutAcrossTabs && broadcastsLogout(reason) {
		m.bus.Broadcast(ctx, broadcast.TypeLogout, syncPayload{UserID: prev.UserID, Reason: reason})
	}

	m.logger.InfoContext(ctx, "session ended",
		logger.Component("session"),
		logger.UserID(prev.UserID),
		logger.SessionID(prev.SessionID),
		logger.Reason(reason),
	)

	return func() {
		if l != nil && l.guard != nil {
			if reason == ReasonBrowserClose {
				// Called from the guard's own unload callback.
				go l.guard.Stop()
			} else {
				l.guard.Stop()
			}
		}
		m.runEndHooks(reason)
	}
}

// endFrom ends the session only if epoch is still current.
func (m *Manager) endFrom(epoch uint64, reason Reason) {
	m.opMu.Lock()
	m.mu.Lock()
	current := m.epoch == epoch && m.state.IsAuthenticated
	m.mu.Unlock()

	var after func()
	if current {
		after = m.teardown(m.ctx, reason)
	}
	m.opMu.Unlock()

	if after != nil {
		after()
	}
}

func (m *Manager) clearStorage() {
	tabstore.ClearPrefixed(m.storage, m.namespaces...)
}

func (m *Manager) commitLocked() (uint64, State) {
	m.seq++
	return m.seq, m.state
}

// publish delivers st unless a newer snapshot was already delivered.
func (m *Manager) publish(seq uint64, st State) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	if seq <= m.emitted {
		return
	}
	m.emitted = seq

	m.subMu.RLock()
	fns := make([]func(State), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.subMu.RUnlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (m *Manager) runEndHooks(reason Reason) {
	m.subMu.RLock()
	fns := make([]func(Reason), 0, len(m.endHooks))
	for _, fn := range m.endHooks {
		fns = append(fns, fn)
	}
	m.subMu.RUnlock()

	for _, fn := range fns {
		fn(reason)
	}
}

// notifiesBackend reports whether ending for reason calls Backend.Logout.
// A cross-tab logout was already sent by the originating tab and a browser
// close was carried by the unload beacon.
func notifiesBackend(reason Reason) bool {
	return reason != ReasonCrossTabLogout && reason != ReasonBrowserClose
}

// broadcastsLogout reports whether ending for reason logs out sibling tabs.
// Closing one tab leaves the others signed in.
func broadcastsLogout(reason Reason) bool {
	return reason != ReasonCrossTabLogout && reason != ReasonBrowserClose
}
