package registry

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sessionkit/pkg/clock"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

// Registry implements session.Backend and session.Admin over a Store.
//
// Mutations are serialized within one Registry. Several processes sharing a
// store may briefly exceed the concurrent session limit.
type Registry struct {
	store    Store
	clock    clock.Clock
	logger   *slog.Logger
	defaults session.Config
	newID    func() string

	mu sync.Mutex
}

var (
	_ session.Backend = (*Registry)(nil)
	_ session.Admin   = (*Registry)(nil)
)

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger.OrDiscard(l) }
}

// WithDefaults sets the timeouts applied when a request omits them.
func WithDefaults(cfg session.Config) Option {
	return func(r *Registry) { r.defaults = cfg }
}

// WithIDGenerator overrides the session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// New creates a Registry backed by store.
func New(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:    store,
		clock:    clock.New(),
		logger:   logger.Discard(),
		defaults: session.DefaultConfig(),
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates a session record and revokes the least recently active
// sessions of the user beyond MaxConcurrentSessions.
func (r *Registry) Register(ctx context.Context, req session.RegisterRequest) (session.Registration, error) {
	if req.UserID == "" || req.Token == "" {
		return session.Registration{}, ErrInvalidRequest
	}

	now := r.clock.Now()
	rec := Record{
		ID:              r.newID(),
		TokenHash:       HashToken(req.Token),
		UserID:          req.UserID,
		Device:          req.Device,
		IPAddress:       req.IPAddress,
		Active:          true,
		CreatedAt:       now,
		LastActivity:    now,
		IdleTimeout:     req.IdleTimeout,
		AbsoluteTimeout: req.AbsoluteTimeout,
	}
	if rec.IdleTimeout <= 0 {
		rec.IdleTimeout = r.defaults.IdleTimeout
	}
	if rec.AbsoluteTimeout <= 0 {
		rec.AbsoluteTimeout = r.defaults.AbsoluteTimeout
	}
	rec.ExpiresAt = rec.expiry()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Create(ctx, rec); err != nil {
		return session.Registration{}, errors.Join(ErrStore, err)
	}

	revoked, err := r.enforceLimitLocked(ctx, rec, req.MaxConcurrentSessions, now)
	if err != nil {
		r.logger.WarnContext(ctx, "concurrent session limit not enforced",
			logger.Component("registry"),
			logger.UserID(rec.UserID),
			logger.Error(err),
		)
	}

	r.logger.InfoContext(ctx, "session registered",
		logger.Component("registry"),
		logger.UserID(rec.UserID),
		logger.SessionID(rec.ID),
		slog.String("device", rec.Device.Label()),
		slog.Int("revoked_sessions", len(revoked)),
	)

	return session.Registration{
		SessionID:         rec.ID,
		ExpiresAt:         rec.ExpiresAt,
		RevokedSessionIDs: revoked,
	}, nil
}

func (r *Registry) enforceLimitLocked(ctx context.Context, created Record, limit int, now time.Time) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	records, err := r.store.ListActiveByUser(ctx, created.UserID)
	if err != nil {
		return nil, errors.Join(ErrStore, err)
	}

	var live []Record
	for _, rec := range records {
		if rec.ID == created.ID {
			continue
		}
		if !rec.Live(now) {
			rec.end(now, session.ReasonTimeout)
			if err := r.store.Update(ctx, rec); err != nil {
				return nil, errors.Join(ErrStore, err)
			}
			continue
		}
		live = append(live, rec)
	}

	excess := len(live) + 1 - limit
	if excess <= 0 {
		return nil, nil
	}

	sort.SliceStable(live, func(i, j int) bool {
		if live[i].LastActivity.Equal(live[j].LastActivity) {
			return live[i].CreatedAt.Before(live[j].CreatedAt)
		}
		return live[i].LastActivity.Before(live[j].LastActivity)
	})

	revoked := make([]string, 0, excess)
	for _, rec := range live[:excess] {
		rec.end(now, session.ReasonConcurrentLimit)
		if err := r.store.Update(ctx, rec); err != nil {
			return revoked, errors.Join(ErrStore, err)
		}
		revoked = append(revoked, rec.ID)
	}
	return revoked, nil
}

// Heartbeat validates the session of token and slides its idle expiry.
// Unknown tokens are reported as revoked.
func (r *Registry) Heartbeat(ctx context.Context, token string) (session.HeartbeatResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.store.GetByTokenHash(ctx, HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return session.HeartbeatResult{Revoked: true}, nil
	}
	if err != nil {
		return session.HeartbeatResult{}, errors.Join(ErrStore, err)
	}

	now := r.clock.Now()
	if !rec.Active {
		if rec.RevokeReason == session.ReasonTimeout {
			return session.HeartbeatResult{Expired: true}, nil
		}
		return session.HeartbeatResult{Revoked: true}, nil
	}
	if !now.Before(rec.ExpiresAt) {
		rec.end(now, session.ReasonTimeout)
		if err := r.store.Update(ctx, rec); err != nil {
			return session.HeartbeatResult{}, errors.Join(ErrStore, err)
		}
		return session.HeartbeatResult{Expired: true}, nil
	}

	rec.LastActivity = now
	rec.ExpiresAt = rec.expiry()
	if err := r.store.Update(ctx, rec); err != nil {
		return session.HeartbeatResult{}, errors.Join(ErrStore, err)
	}
	return session.HeartbeatResult{Valid: true, ExpiresAt: rec.ExpiresAt}, nil
}

// Logout ends the session of token. Unknown and already ended sessions
// succeed with AlreadyLoggedOut.
func (r *Registry) Logout(ctx context.Context, token string, reason session.Reason) (session.LogoutResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.store.GetByTokenHash(ctx, HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return session.LogoutResult{Success: true, AlreadyLoggedOut: true}, nil
	}
	if err != nil {
		return session.LogoutResult{}, errors.Join(ErrStore, err)
	}
	if !rec.Active {
		return session.LogoutResult{Success: true, AlreadyLoggedOut: true}, nil
	}

	if reason == "" {
		reason = session.ReasonManualLogout
	}
	rec.end(r.clock.Now(), reason)
	if err := r.store.Update(ctx, rec); err != nil {
		return session.LogoutResult{}, errors.Join(ErrStore, err)
	}

	r.logger.InfoContext(ctx, "session logged out",
		logger.Component("registry"),
		logger.UserID(rec.UserID),
		logger.SessionID(rec.ID),
		logger.Reason(reason),
	)
	return session.LogoutResult{Success: true}, nil
}

// Revoke ends one session by id, or every active session of a user. Only
// the owner or an admin may revoke.
func (r *Registry) Revoke(ctx context.Context, actor session.Actor, req session.RevokeRequest) (int, error) {
	reason := req.Reason
	if reason == "" {
		reason = session.ReasonRevoked
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	switch {
	case req.SessionID != "":
		rec, err := r.store.Get(ctx, req.SessionID)
		if errors.Is(err, ErrNotFound) {
			return 0, session.ErrSessionNotFound
		}
		if err != nil {
			return 0, errors.Join(ErrStore, err)
		}
		if !actor.CanManage(rec.UserID) {
			return 0, session.ErrForbidden
		}
		if !rec.Active {
			return 0, nil
		}
		rec.end(now, reason)
		if err := r.store.Update(ctx, rec); err != nil {
			return 0, errors.Join(ErrStore, err)
		}
		r.logRevoked(ctx, actor, rec.UserID, 1, reason)
		return 1, nil

	case req.UserID != "" && req.RevokeAll:
		if !actor.CanManage(req.UserID) {
			return 0, session.ErrForbidden
		}
		records, err := r.store.ListActiveByUser(ctx, req.UserID)
		if err != nil {
			return 0, errors.Join(ErrStore, err)
		}
		count := 0
		for _, rec := range records {
			rec.end(now, reason)
			if err := r.store.Update(ctx, rec); err != nil {
				return count, errors.Join(ErrStore, err)
			}
			count++
		}
		r.logRevoked(ctx, actor, req.UserID, count, reason)
		return count, nil

	default:
		return 0, ErrInvalidRequest
	}
}

func (r *Registry) logRevoked(ctx context.Context, actor session.Actor, userID string, count int, reason session.Reason) {
	r.logger.InfoContext(ctx, "sessions revoked",
		logger.Component("registry"),
		logger.UserID(userID),
		slog.String("actor", actor.UserID),
		slog.Bool("admin", actor.Admin),
		slog.Int("count", count),
		logger.Reason(reason),
	)
}

// ListSessions returns the live sessions of userID, most recently active first.
func (r *Registry) ListSessions(ctx context.Context, actor session.Actor, userID string) ([]session.Summary, error) {
	if userID == "" {
		return nil, ErrInvalidRequest
	}
	if !actor.CanManage(userID) {
		return nil, session.ErrForbidden
	}

	records, err := r.store.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrStore, err)
	}

	now := r.clock.Now()
	out := make([]session.Summary, 0, len(records))
	for _, rec := range records {
		if rec.Live(now) {
			out = append(out, rec.Summary())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}
