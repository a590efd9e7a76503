package config

import "errors"

var (
	// ErrParsingConfig wraps env parsing failures
	ErrParsingConfig = errors.New("config.parse_failed")

	// ErrNilPointer is returned by Load for a nil target
	ErrNilPointer = errors.New("config.nil_pointer")
)
