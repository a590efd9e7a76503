package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/clock"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
)

const (
	// DefaultStorageKey is the well-known key messages are written under.
	DefaultStorageKey = "sessionkit.broadcast"

	// DefaultClearDelay is how long a message stays under the key before it is
	// cleared, so identical content can be sent again later.
	DefaultClearDelay = 100 * time.Millisecond
)

// StorageEvent describes a change of a shared storage key. A cleared key has
// an empty NewValue.
type StorageEvent struct {
	Key      string `json:"key"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`
}

// SharedStorage is a key/value store shared by all tabs of an origin that
// emits change notifications. Watchers are only notified when the stored
// value actually changes.
type SharedStorage interface {
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Watch(ctx context.Context, key string) (<-chan StorageEvent, error)
}

// StorageTransport is the fallback transport built on shared storage: the
// sender writes the encoded message under a well-known key and clears it
// shortly after.
type StorageTransport struct {
	storage    SharedStorage
	key        string
	clearDelay time.Duration
	clock      clock.Clock
	logger     *slog.Logger

	mu      sync.Mutex
	closed  bool
	pending map[clock.Timer]struct{}
}

// StorageOption configures a StorageTransport.
type StorageOption func(*StorageTransport)

// WithStorageKey overrides DefaultStorageKey.
func WithStorageKey(key string) StorageOption {
	return func(t *StorageTransport) {
		if key != "" {
			t.key = key
		}
	}
}

// WithClearDelay overrides DefaultClearDelay.
func WithClearDelay(d time.Duration) StorageOption {
	return func(t *StorageTransport) { t.clearDelay = d }
}

// WithStorageClock sets the clock driving the clear timer.
func WithStorageClock(c clock.Clock) StorageOption {
	return func(t *StorageTransport) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithStorageLogger sets the logger.
func WithStorageLogger(l *slog.Logger) StorageOption {
	return func(t *StorageTransport) { t.logger = logger.OrDiscard(l) }
}

// NewStorageTransport creates a fallback transport over storage.
func NewStorageTransport(storage SharedStorage, opts ...StorageOption) *StorageTransport {
	t := &StorageTransport{
		storage:    storage,
		key:        DefaultStorageKey,
		clearDelay: DefaultClearDelay,
		clock:      clock.New(),
		logger:     logger.Discard(),
		pending:    make(map[clock.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *StorageTransport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.mu.Unlock()

	if err := t.storage.Set(ctx, t.key, string(data)); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var timer clock.Timer
	timer = t.clock.AfterFunc(t.clearDelay, func() {
		t.mu.Lock()
		delete(t.pending, timer)
		t.mu.Unlock()

		if err := t.storage.Delete(context.Background(), t.key); err != nil {
			t.logger.Warn("failed to clear broadcast key",
				logger.Component("broadcast"),
				logger.Error(err),
			)
		}
	})
	t.pending[timer] = struct{}{}
	return nil
}

func (t *StorageTransport) Listen(ctx context.Context) (<-chan []byte, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, ErrTransportClosed
	}

	events, err := t.storage.Watch(ctx, t.key)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for evt := range events {
			// Clearing the key is housekeeping, not a message.
			if evt.NewValue == "" {
				continue
			}
			select {
			case out <- []byte(evt.NewValue):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close cancels pending clear timers. The storage is owned by the caller.
func (t *StorageTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	for timer := range t.pending {
		timer.Stop()
	}
	clear(t.pending)
	return nil
}
