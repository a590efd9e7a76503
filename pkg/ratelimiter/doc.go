// Package ratelimiter implements a token bucket limiter and an HTTP
// middleware around it.
//
// The registry API uses it to throttle session registration and heartbeats
// per client address:
//
//	limiter, err := ratelimiter.New(ratelimiter.NewMemoryStore(), ratelimiter.Config{
//		Capacity:       30,
//		RefillRate:     1,
//		RefillInterval: 2 * time.Second,
//	})
//	r.Use(ratelimiter.Middleware(limiter, ratelimiter.Composite(ratelimiter.ClientIP, ratelimiter.Path)))
//
// A bucket starts full and gains RefillRate tokens every RefillInterval up
// to Capacity. A request is denied once it would take the bucket below zero.
package ratelimiter
