package broadcast

import "context"

// Transport moves encoded messages between tabs. Implementations must be
// safe for concurrent use.
type Transport interface {
	// Send delivers data to every listener of the transport, including
	// listeners in the sending tab.
	Send(ctx context.Context, data []byte) error

	// Listen returns a channel of received payloads. The channel is closed
	// when ctx is cancelled or the transport is closed.
	Listen(ctx context.Context) (<-chan []byte, error)

	// Close releases resources. It is idempotent.
	Close() error
}
