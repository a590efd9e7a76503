package broadcast

import "errors"

var (
	// ErrTransportUnavailable indicates neither a primary nor a fallback transport works.
	ErrTransportUnavailable = errors.New("broadcast.transport_unavailable")

	// ErrTransportClosed is returned by operations on a closed transport.
	ErrTransportClosed = errors.New("broadcast.transport_closed")

	// ErrInvalidMessage indicates a payload that cannot be decoded as a Message.
	ErrInvalidMessage = errors.New("broadcast.invalid_message")
)
