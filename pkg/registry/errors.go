package registry

import "errors"

var (
	// ErrNotFound indicates no record matches the lookup
	ErrNotFound = errors.New("registry.not_found")

	// ErrDuplicate indicates a record with the same id or token hash exists
	ErrDuplicate = errors.New("registry.duplicate")

	// ErrInvalidRequest indicates a request is missing required fields
	ErrInvalidRequest = errors.New("registry.invalid_request")

	// ErrStore wraps failures of the underlying store
	ErrStore = errors.New("registry.store_failed")
)
