// Package redis opens go-redis clients from environment configuration with
// startup retries and exposes a health probe.
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//	client, err := redis.Connect(ctx, cfg)
package redis
