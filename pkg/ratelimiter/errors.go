package ratelimiter

import "errors"

var (
	// ErrInvalidConfig indicates a non positive capacity, rate or interval
	ErrInvalidConfig = errors.New("ratelimiter.invalid_config")

	// ErrInvalidTokenCount indicates a non positive token request
	ErrInvalidTokenCount = errors.New("ratelimiter.invalid_token_count")

	// ErrStoreUnavailable indicates the bucket store failed
	ErrStoreUnavailable = errors.New("ratelimiter.store_unavailable")
)
