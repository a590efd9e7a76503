package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sessionkit/pkg/clock"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
)

// Handler receives messages sent by other tabs.
type Handler func(ctx context.Context, msg Message)

// Bus is one tab's handle on the cross-tab channel.
type Bus struct {
	primary  Transport
	fallback Transport
	tabID    string
	clock    clock.Clock
	logger   *slog.Logger

	mu       sync.RWMutex
	handlers map[Type]map[uint64]Handler
	nextID   uint64
	active   Transport
	running  bool
	cancel   context.CancelFunc
}

// Option configures a Bus.
type Option func(*Bus)

// WithPrimary sets the direct channel transport.
func WithPrimary(t Transport) Option {
	return func(b *Bus) { b.primary = t }
}

// WithFallback sets the transport used when the primary is missing or fails.
func WithFallback(t Transport) Option {
	return func(b *Bus) { b.fallback = t }
}

// WithTabID overrides the generated origin-tab identifier.
func WithTabID(id string) Option {
	return func(b *Bus) {
		if id != "" {
			b.tabID = id
		}
	}
}

// WithClock sets the clock used for message timestamps.
func WithClock(c clock.Clock) Option {
	return func(b *Bus) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger.OrDiscard(l) }
}

// NewBus creates a stopped bus. Without WithTabID a random identifier is used.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		tabID:    uuid.NewString(),
		clock:    clock.New(),
		logger:   logger.Discard(),
		handlers: make(map[Type]map[uint64]Handler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// TabID returns the origin-tab identifier stamped on outgoing messages.
func (b *Bus) TabID() string {
	return b.tabID
}

// Enabled reports whether any transport is configured.
func (b *Bus) Enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.senderLocked() != nil
}

// Start begins receiving. The primary transport is tried first, then the
// fallback. ErrTransportUnavailable means cross-tab sync is disabled; the bus
// stays usable as a no-op. Calling Start on a running bus does nothing.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	listenCtx, cancel := context.WithCancel(ctx)

	var errs []error
	for _, t := range []Transport{b.primary, b.fallback} {
		if t == nil {
			continue
		}
		ch, err := t.Listen(listenCtx)
		if err != nil {
			errs = append(errs, err)
			b.logger.Warn("broadcast transport unavailable, trying fallback",
				logger.Component("broadcast"),
				logger.TabID(b.tabID),
				logger.Error(err),
			)
			continue
		}
		b.active = t
		b.running = true
		b.cancel = cancel
		go b.receive(listenCtx, ch)
		return nil
	}

	cancel()
	b.logger.Info("cross-tab sync disabled",
		logger.Component("broadcast"),
		logger.TabID(b.tabID),
	)
	return errors.Join(append([]error{ErrTransportUnavailable}, errs...)...)
}

// Stop ends receiving. It does not wait for a handler that is already
// running, so handlers may call Stop themselves. Broadcast keeps working on
// the last selected transport.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}
	b.running = false
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

// Close stops the bus and closes both transports.
func (b *Bus) Close() error {
	b.Stop()

	var errs []error
	for _, t := range []Transport{b.primary, b.fallback} {
		if t == nil {
			continue
		}
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// On registers handler for messages of type typ and returns a function that
// removes it.
func (b *Bus) On(typ Type, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.handlers[typ] == nil {
		b.handlers[typ] = make(map[uint64]Handler)
	}
	b.handlers[typ][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[typ], id)
	}
}

// Broadcast sends a message to every other tab. It never fails: encoding and
// transport errors are logged and dropped.
func (b *Bus) Broadcast(ctx context.Context, typ Type, payload any) {
	b.mu.RLock()
	t := b.senderLocked()
	b.mu.RUnlock()

	if t == nil {
		return
	}

	msg := Message{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: b.clock.Now(),
		TabID:     b.tabID,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			b.logger.Error("failed to encode broadcast payload",
				logger.Component("broadcast"),
				logger.MessageType(typ),
				logger.Error(err),
			)
			return
		}
		msg.Payload = raw
	}

	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to encode broadcast message",
			logger.Component("broadcast"),
			logger.MessageType(typ),
			logger.Error(err),
		)
		return
	}

	if err := t.Send(ctx, data); err != nil {
		b.logger.Error("failed to send broadcast message",
			logger.Component("broadcast"),
			logger.MessageType(typ),
			logger.TabID(b.tabID),
			logger.Error(err),
		)
	}
}

func (b *Bus) senderLocked() Transport {
	switch {
	case b.active != nil:
		return b.active
	case b.primary != nil:
		return b.primary
	default:
		return b.fallback
	}
}

func (b *Bus) receive(ctx context.Context, ch <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			b.dispatch(ctx, data)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, data []byte) {
	msg, err := decodeMessage(data)
	if err != nil {
		b.logger.Warn("dropping malformed broadcast message",
			logger.Component("broadcast"),
			logger.Error(err),
		)
		return
	}
	if msg.TabID == b.tabID {
		return
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[msg.Type]))
	for _, h := range b.handlers[msg.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, msg)
	}
}
