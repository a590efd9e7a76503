package session

import (
	"log/slog"

	"github.com/dmitrymomot/sessionkit/pkg/activity"
	"github.com/dmitrymomot/sessionkit/pkg/broadcast"
	"github.com/dmitrymomot/sessionkit/pkg/clock"
	"github.com/dmitrymomot/sessionkit/pkg/device"
	"github.com/dmitrymomot/sessionkit/pkg/lifecycle"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/tabstore"
)

// Option is a functional option for configuring the Manager
type Option func(*Manager)

// WithConfig sets the session policy
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.config = cfg
	}
}

// WithStorage sets the tab-scoped storage holding the session token
func WithStorage(s tabstore.Storage) Option {
	return func(m *Manager) {
		if s != nil {
			m.storage = s
		}
	}
}

// WithBus enables cross-tab synchronization over bus
func WithBus(bus *broadcast.Bus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithActivitySource sets the source of user interaction events
func WithActivitySource(src activity.Source) Option {
	return func(m *Manager) {
		m.activity = src
	}
}

// WithLifecycleSource enables the page lifecycle guard
func WithLifecycleSource(src lifecycle.Source) Option {
	return func(m *Manager) {
		m.lifecycle = src
	}
}

// WithBeacon sets the transport for unload logout beacons
func WithBeacon(b lifecycle.Beacon) Option {
	return func(m *Manager) {
		m.beacon = b
	}
}

// WithEnvironment sets the runtime characteristics used for the device
// fingerprint. Without it the server sentinel device is reported.
func WithEnvironment(env *device.Environment) Option {
	return func(m *Manager) {
		m.env = env
	}
}

// WithTokenGenerator sets the session token source
func WithTokenGenerator(g *device.TokenGenerator) Option {
	return func(m *Manager) {
		if g != nil {
			m.tokens = g
		}
	}
}

// WithClock sets the time source for all session timers
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger.OrDiscard(l)
	}
}

// WithStorageNamespaces adds key prefixes cleared from tab storage when a
// session ends, for example the auth provider's own keys.
func WithStorageNamespaces(prefixes ...string) Option {
	return func(m *Manager) {
		m.namespaces = append(m.namespaces, prefixes...)
	}
}
