package provider

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

// Provider owns the single session.Manager of a tab.
type Provider struct {
	auth      AuthSource
	signOuter SignOuter
	manager   *session.Manager
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	loading   bool
	mounted   bool
	unmounted bool
	unsubs    []func()
}

// Option configures a Provider.
type Option func(*config)

type config struct {
	managerOpts []session.Option
	logger      *slog.Logger
	signOuter   SignOuter
}

// WithOptions sets the session policy from the plain options object.
func WithOptions(o session.Options) Option {
	return func(c *config) {
		c.managerOpts = append(c.managerOpts, session.WithConfig(o.Config()))
	}
}

// WithManagerOptions passes opts to the underlying session.Manager.
func WithManagerOptions(opts ...session.Option) Option {
	return func(c *config) { c.managerOpts = append(c.managerOpts, opts...) }
}

// WithSignOuter overrides the SignOuter detected on the auth source.
func WithSignOuter(s SignOuter) Option {
	return func(c *config) { c.signOuter = s }
}

// WithLogger sets the logger for the provider and its manager.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = logger.OrDiscard(l) }
}

// New creates a Provider and its session.Manager. Nothing starts until Mount.
func New(auth AuthSource, backend session.Backend, opts ...Option) *Provider {
	cfg := config{logger: logger.Discard()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.signOuter == nil {
		if s, ok := auth.(SignOuter); ok {
			cfg.signOuter = s
		}
	}

	managerOpts := append([]session.Option{session.WithLogger(cfg.logger)}, cfg.managerOpts...)
	p := &Provider{
		auth:      auth,
		signOuter: cfg.signOuter,
		manager:   session.New(backend, managerOpts...),
		logger:    cfg.logger,
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// Manager returns the underlying session manager.
func (p *Provider) Manager() *session.Manager {
	return p.manager
}

// State returns the current session snapshot.
func (p *Provider) State() session.State {
	return p.manager.State()
}

// IsLoading reports whether Mount is still resolving the initial session.
func (p *Provider) IsLoading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Subscribe registers fn for every session state change.
func (p *Provider) Subscribe(fn func(session.State)) func() {
	return p.manager.Subscribe(fn)
}

// Mount resolves the initial session and starts following the auth source.
// A signed in principal gets its stored session restored, or a fresh one
// when restore fails. Mount is idempotent and does nothing after Unmount.
func (p *Provider) Mount(ctx context.Context) {
	p.mu.Lock()
	if p.mounted || p.unmounted {
		p.mu.Unlock()
		return
	}
	p.mounted = true
	p.loading = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.loading = false
		p.mu.Unlock()
	}()

	unsubs := []func(){
		p.manager.OnEnd(p.handleEnd),
	}
	if p.auth != nil {
		unsubs = append(unsubs, p.auth.Subscribe(p.handleAuth))
	}
	p.mu.Lock()
	p.unsubs = unsubs
	p.mu.Unlock()

	if p.auth == nil {
		return
	}
	userID, ok, err := p.auth.CurrentUser(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "auth source unavailable on mount",
			logger.Component("provider"),
			logger.Error(err),
		)
		return
	}
	if !ok {
		return
	}

	if err := p.manager.RestoreSession(ctx); err == nil {
		if p.manager.State().UserID == userID {
			return
		}
	} else if !errors.Is(err, session.ErrNoStoredSession) {
		p.logger.InfoContext(ctx, "stored session not restored, starting fresh",
			logger.Component("provider"),
			logger.UserID(userID),
			logger.Error(err),
		)
	}
	p.start(ctx, userID)
}

// Unmount detaches from the auth source and closes the manager without
// logging out. The provider cannot be mounted again.
func (p *Provider) Unmount() {
	p.mu.Lock()
	if p.unmounted {
		p.mu.Unlock()
		return
	}
	p.unmounted = true
	unsubs := p.unsubs
	p.unsubs = nil
	p.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	p.cancel()
	_ = p.manager.Close()
}

// Login starts a session for userID. It reports false when the backend
// rejected the registration.
func (p *Provider) Login(ctx context.Context, userID string) bool {
	return p.start(ctx, userID)
}

// Logout ends the session. It always succeeds locally.
func (p *Provider) Logout(ctx context.Context) bool {
	p.manager.EndSession(ctx, session.ReasonManualLogout)
	return !p.manager.State().IsAuthenticated
}

// ExtendSession marks the user active in every tab. It reports false
// without a session.
func (p *Provider) ExtendSession(ctx context.Context) bool {
	return p.manager.ExtendSession(ctx) == nil
}

func (p *Provider) start(ctx context.Context, userID string) bool {
	if err := p.manager.StartSession(ctx, userID); err != nil {
		p.logger.WarnContext(ctx, "session start failed",
			logger.Component("provider"),
			logger.UserID(userID),
			logger.Error(err),
		)
		return false
	}
	return true
}

func (p *Provider) handleAuth(evt AuthEvent) {
	switch evt.Type {
	case SignedIn:
		if evt.UserID != "" {
			p.start(p.ctx, evt.UserID)
		}
	case SignedOut:
		p.manager.EndSession(p.ctx, session.ReasonSignedOut)
	default:
		p.logger.Debug("ignoring auth event",
			logger.Component("provider"),
			slog.String("type", string(evt.Type)),
		)
	}
}

// handleEnd keeps the auth source aligned with sessions the manager ended on
// its own.
func (p *Provider) handleEnd(reason session.Reason) {
	if reason == session.ReasonSignedOut || p.signOuter == nil {
		return
	}
	if err := p.signOuter.SignOut(p.ctx); err != nil {
		p.logger.Warn("auth sign out failed",
			logger.Component("provider"),
			logger.Reason(reason),
			logger.Error(err),
		)
	}
}
