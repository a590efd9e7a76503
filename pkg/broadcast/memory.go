package broadcast

import (
	"context"
	"sync"
)

// MemoryChannel is an in-process same-origin channel. Every Endpoint behaves
// like one tab's handle on the channel. Delivery is non-blocking: a listener
// whose buffer is full misses the message instead of stalling the sender.
type MemoryChannel struct {
	subscribers map[*listener]struct{}
	bufferSize  int
	closed      bool
	mu          sync.RWMutex
}

type listener struct {
	ch     chan []byte
	closed bool
	mu     sync.RWMutex
}

func (l *listener) send(data []byte) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return false
	}

	select {
	case l.ch <- data:
		return true
	default:
		return false
	}
}

func (l *listener) close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		close(l.ch)
		l.closed = true
	}
}

// NewMemoryChannel creates a channel. A minimum buffer size of 1 is enforced.
func NewMemoryChannel(bufferSize int) *MemoryChannel {
	return &MemoryChannel{
		subscribers: make(map[*listener]struct{}),
		bufferSize:  max(bufferSize, 1),
	}
}

// Endpoint returns a new Transport attached to the channel.
func (c *MemoryChannel) Endpoint() Transport {
	return &memoryEndpoint{channel: c, listeners: make(map[*listener]struct{})}
}

// Close closes every listener. Endpoints stay usable but inert.
func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	for l := range c.subscribers {
		l.close()
	}
	clear(c.subscribers)
	return nil
}

func (c *MemoryChannel) publish(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrTransportClosed
	}
	for l := range c.subscribers {
		// Each listener gets its own copy so no receiver can mutate another's payload.
		_ = l.send(append([]byte(nil), data...))
	}
	return nil
}

func (c *MemoryChannel) subscribe() (*listener, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrTransportClosed
	}
	l := &listener{ch: make(chan []byte, c.bufferSize)}
	c.subscribers[l] = struct{}{}
	return l, nil
}

func (c *MemoryChannel) unsubscribe(l *listener) {
	c.mu.Lock()
	delete(c.subscribers, l)
	c.mu.Unlock()
	l.close()
}

type memoryEndpoint struct {
	channel   *MemoryChannel
	listeners map[*listener]struct{}
	closed    bool
	mu        sync.Mutex
}

func (e *memoryEndpoint) Send(_ context.Context, data []byte) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}
	return e.channel.publish(data)
}

func (e *memoryEndpoint) Listen(ctx context.Context) (<-chan []byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrTransportClosed
	}

	l, err := e.channel.subscribe()
	if err != nil {
		return nil, err
	}
	e.listeners[l] = struct{}{}

	go func() {
		<-ctx.Done()
		e.release(l)
	}()

	return l.ch, nil
}

func (e *memoryEndpoint) release(l *listener) {
	e.mu.Lock()
	delete(e.listeners, l)
	e.mu.Unlock()
	e.channel.unsubscribe(l)
}

func (e *memoryEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	listeners := make([]*listener, 0, len(e.listeners))
	for l := range e.listeners {
		listeners = append(listeners, l)
	}
	clear(e.listeners)
	e.mu.Unlock()

	for _, l := range listeners {
		e.channel.unsubscribe(l)
	}
	return nil
}
