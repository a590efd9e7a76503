package session

import (
	"math"
	"time"
)

// Config holds the session policy. It is fixed for the lifetime of a Manager.
type Config struct {
	// IdleTimeout is the silence after which the user counts as idle, and the
	// time from that moment until the session ends.
	IdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`

	// AbsoluteTimeout is the maximum session lifetime. It is enforced by the backend.
	AbsoluteTimeout time.Duration `env:"SESSION_ABSOLUTE_TIMEOUT" envDefault:"8h"`

	HeartbeatInterval time.Duration `env:"SESSION_HEARTBEAT_INTERVAL" envDefault:"5m"`

	// WarnBeforeTimeout is the length of the countdown shown before an idle
	// session ends. Values above IdleTimeout are clamped to it.
	WarnBeforeTimeout time.Duration `env:"SESSION_WARN_BEFORE_TIMEOUT" envDefault:"5m"`

	// MaxConcurrentSessions per user, 0 means unlimited. Enforced by the backend.
	MaxConcurrentSessions int `env:"SESSION_MAX_CONCURRENT" envDefault:"3"`

	LogoutOnBrowserClose bool `env:"SESSION_LOGOUT_ON_BROWSER_CLOSE" envDefault:"true"`
	SyncLogoutAcrossTabs bool `env:"SESSION_SYNC_LOGOUT_ACROSS_TABS" envDefault:"true"`

	// LogoutEndpoint receives unload beacons.
	LogoutEndpoint string `env:"SESSION_LOGOUT_ENDPOINT" envDefault:"/api/sessions/logout"`
}

// DefaultConfig returns the default session policy.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:           30 * time.Minute,
		AbsoluteTimeout:       8 * time.Hour,
		HeartbeatInterval:     5 * time.Minute,
		WarnBeforeTimeout:     5 * time.Minute,
		MaxConcurrentSessions: 3,
		LogoutOnBrowserClose:  true,
		SyncLogoutAcrossTabs:  true,
		LogoutEndpoint:        "/api/sessions/logout",
	}
}

// normalized fills zero durations with defaults and clamps the warning window.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.AbsoluteTimeout <= 0 {
		c.AbsoluteTimeout = def.AbsoluteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	c.WarnBeforeTimeout = min(max(c.WarnBeforeTimeout, 0), c.IdleTimeout)
	c.MaxConcurrentSessions = max(c.MaxConcurrentSessions, 0)
	if c.LogoutEndpoint == "" {
		c.LogoutEndpoint = def.LogoutEndpoint
	}
	return c
}

// warnSeconds is the countdown start value.
func (c Config) warnSeconds() int {
	return int(math.Ceil(c.WarnBeforeTimeout.Seconds()))
}

// Options is the plain options object accepted at construction, expressed in
// minutes and hours. Nil and zero fields take the defaults.
type Options struct {
	IdleTimeoutMinutes       float64 `json:"idleTimeoutMinutes,omitempty"`
	AbsoluteTimeoutHours     float64 `json:"absoluteTimeoutHours,omitempty"`
	HeartbeatIntervalMinutes float64 `json:"heartbeatIntervalMinutes,omitempty"`
	WarnBeforeTimeoutMinutes float64 `json:"warnBeforeTimeoutMinutes,omitempty"`
	MaxConcurrentSessions    *int    `json:"maxConcurrentSessions,omitempty"`
	LogoutOnBrowserClose     *bool   `json:"logoutOnBrowserClose,omitempty"`
	SyncLogoutAcrossTabs     *bool   `json:"syncLogoutAcrossTabs,omitempty"`
}

// Config converts o to a Config.
func (o Options) Config() Config {
	cfg := DefaultConfig()
	if o.IdleTimeoutMinutes > 0 {
		cfg.IdleTimeout = minutes(o.IdleTimeoutMinutes)
	}
	if o.AbsoluteTimeoutHours > 0 {
		cfg.AbsoluteTimeout = time.Duration(o.AbsoluteTimeoutHours * float64(time.Hour))
	}
	if o.HeartbeatIntervalMinutes > 0 {
		cfg.HeartbeatInterval = minutes(o.HeartbeatIntervalMinutes)
	}
	if o.WarnBeforeTimeoutMinutes > 0 {
		cfg.WarnBeforeTimeout = minutes(o.WarnBeforeTimeoutMinutes)
	}
	if o.MaxConcurrentSessions != nil {
		cfg.MaxConcurrentSessions = *o.MaxConcurrentSessions
	}
	if o.LogoutOnBrowserClose != nil {
		cfg.LogoutOnBrowserClose = *o.LogoutOnBrowserClose
	}
	if o.SyncLogoutAcrossTabs != nil {
		cfg.SyncLogoutAcrossTabs = *o.SyncLogoutAcrossTabs
	}
	return cfg.normalized()
}

func minutes(v float64) time.Duration {
	return time.Duration(v * float64(time.Minute))
}
