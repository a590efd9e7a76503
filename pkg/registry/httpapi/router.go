package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/sessionkit/pkg/clientip"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/ratelimiter"
	"github.com/dmitrymomot/sessionkit/pkg/requestid"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

// Service is the registry served by the API.
type Service interface {
	session.Backend
	session.Admin
}

// TokenRequest carries a session token.
type TokenRequest struct {
	Token  string         `json:"token"`
	Reason session.Reason `json:"reason,omitempty"`
}

// RevokeResponse reports how many sessions a revoke ended.
type RevokeResponse struct {
	RevokedCount int `json:"revoked_count"`
}

// ListResponse wraps a session listing.
type ListResponse struct {
	Sessions []session.Summary `json:"sessions"`
}

type api struct {
	svc    Service
	actor  ActorResolver
	ips     *clientip.Resolver
	limiter *ratelimiter.Limiter
	logger  *slog.Logger
}

// Option configures the router.
type Option func(*api)

// WithActorResolver sets how admin routes identify the caller.
func WithActorResolver(fn ActorResolver) Option {
	return func(a *api) {
		if fn != nil {
			a.actor = fn
		}
	}
}

// WithClientIP sets the resolver recording client addresses on registration.
func WithClientIP(r *clientip.Resolver) Option {
	return func(a *api) {
		if r != nil {
			a.ips = r
		}
	}
}

// WithRateLimiter throttles every route per client address and path.
func WithRateLimiter(l *ratelimiter.Limiter) Option {
	return func(a *api) { a.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *api) { a.logger = logger.OrDiscard(l) }
}

// NewRouter returns the API routes over svc.
func NewRouter(svc Service, opts ...Option) chi.Router {
	a := &api{
		svc:    svc,
		actor:  HeaderActor,
		ips:    clientip.New(),
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(a.ips.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)
	if a.limiter != nil {
		r.Use(ratelimiter.Middleware(a.limiter,
			ratelimiter.Composite(ratelimiter.ClientIP, ratelimiter.Path),
			ratelimiter.WithDeniedHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				a.fail(w, r, errRateLimited)
			})),
		))
	}

	r.Post("/sessions", a.register)
	r.Post("/sessions/heartbeat", a.heartbeat)
	r.Post("/sessions/logout", a.logout)
	r.Post("/sessions/revoke", a.revoke)
	r.Get("/users/{userID}/sessions", a.list)
	return r
}

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var req session.RegisterRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = clientip.FromContext(r.Context())
	}

	reg, err := a.svc.Register(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (a *api) heartbeat(w http.ResponseWriter, r *http.Request) {
	req, err := a.tokenRequest(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.svc.Heartbeat(r.Context(), req.Token)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	req, err := a.tokenRequest(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.svc.Logout(r.Context(), req.Token, req.Reason)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) revoke(w http.ResponseWriter, r *http.Request) {
	actor, err := a.actor(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req session.RevokeRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	n, err := a.svc.Revoke(r.Context(), actor, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RevokeResponse{RevokedCount: n})
}

func (a *api) list(w http.ResponseWriter, r *http.Request) {
	actor, err := a.actor(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	sessions, err := a.svc.ListSessions(r.Context(), actor, chi.URLParam(r, "userID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []session.Summary{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Sessions: sessions})
}

// tokenRequest reads the token from the body, or from a bearer
// Authorization header when the body has none.
func (a *api) tokenRequest(w http.ResponseWriter, r *http.Request) (TokenRequest, error) {
	var req TokenRequest
	if err := decode(w, r, &req); err != nil {
		return req, err
	}
	if req.Token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			req.Token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if req.Token == "" {
		return req, errBadBody
	}
	return req, nil
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	a.logger.Log(r.Context(), level, "request failed",
		logger.Component("httpapi"),
		requestid.Attr(r.Context()),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		logger.Error(err),
	)
	writeJSON(w, status, Error{Error: code})
}

func (a *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.DebugContext(r.Context(), "request served",
			logger.Component("httpapi"),
			requestid.Attr(r.Context()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			logger.Duration(time.Since(start)),
		)
	})
}
