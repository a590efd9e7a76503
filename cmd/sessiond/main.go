// Command sessiond serves the session registry HTTP API.
//
// The store is chosen with SESSIOND_STORE: memory (default), postgres or
// redis. Postgres migrations are applied on start.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/sessionkit/pkg/clientip"
	"github.com/dmitrymomot/sessionkit/pkg/config"
	"github.com/dmitrymomot/sessionkit/pkg/httpserver"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/pg"
	"github.com/dmitrymomot/sessionkit/pkg/ratelimiter"
	"github.com/dmitrymomot/sessionkit/pkg/redis"
	"github.com/dmitrymomot/sessionkit/pkg/registry"
	"github.com/dmitrymomot/sessionkit/pkg/registry/httpapi"
	"github.com/dmitrymomot/sessionkit/pkg/registry/pgstore"
	"github.com/dmitrymomot/sessionkit/pkg/registry/redisstore"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

type appConfig struct {
	Env            string   `env:"SESSIOND_ENV" envDefault:"development"`
	Addr           string   `env:"SESSIOND_ADDR"`
	Store          string   `env:"SESSIOND_STORE" envDefault:"memory"`
	MountPath      string   `env:"SESSIOND_MOUNT_PATH" envDefault:"/api"`
	TrustedProxies []string `env:"SESSIOND_TRUSTED_PROXIES" envSeparator:","`
	RedisPrefix    string   `env:"SESSIOND_REDIS_PREFIX" envDefault:"sessionkit:"`
	RateLimit      bool     `env:"SESSIOND_RATE_LIMIT" envDefault:"true"`
}

var errUnknownStore = errors.New("sessiond.unknown_store")

func main() {
	var app appConfig
	config.MustLoad(&app)

	log := logger.New(logger.WithEnvironment(app.Env, "sessiond"))

	if err := run(context.Background(), app, log); err != nil {
		log.Error("sessiond stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, app appConfig, log *slog.Logger) error {
	var (
		sessCfg session.Config
		httpCfg httpserver.Config
	)
	if err := config.Load(&sessCfg); err != nil {
		return err
	}
	if err := config.Load(&httpCfg); err != nil {
		return err
	}
	if app.Addr != "" {
		httpCfg.Addr = app.Addr
	}

	store, checks, cleanup, err := openStore(ctx, app, log)
	if err != nil {
		return err
	}
	defer cleanup()

	reg := registry.New(store,
		registry.WithDefaults(sessCfg),
		registry.WithLogger(log),
	)

	apiOpts := []httpapi.Option{
		httpapi.WithClientIP(clientip.New(app.TrustedProxies...)),
		httpapi.WithLogger(log),
	}
	if app.RateLimit {
		var rlCfg ratelimiter.Config
		if err := config.Load(&rlCfg); err != nil {
			return err
		}
		buckets := ratelimiter.NewMemoryStore()
		defer buckets.Close()
		limiter, err := ratelimiter.New(buckets, rlCfg)
		if err != nil {
			return err
		}
		apiOpts = append(apiOpts, httpapi.WithRateLimiter(limiter))
	}

	r := chi.NewRouter()
	r.Get("/health/live", httpserver.HealthHandler(log))
	r.Get("/health/ready", httpserver.HealthHandler(log, checks...))
	r.Mount(app.MountPath, httpapi.NewRouter(reg, apiOpts...))

	log.Info("starting sessiond",
		slog.String("addr", httpCfg.Addr),
		slog.String("store", app.Store),
		slog.String("mount", app.MountPath),
	)

	return httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log)).Run(ctx, r)
}

func openStore(ctx context.Context, app appConfig, log *slog.Logger) (registry.Store, []func(context.Context) error, func(), error) {
	switch app.Store {
	case "", "memory":
		log.Warn("using in-memory session store, sessions are lost on restart")
		return registry.NewMemoryStore(), nil, func() {}, nil

	case "postgres":
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return nil, nil, nil, err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, log); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return pgstore.New(pool), []func(context.Context) error{pg.Healthcheck(pool)}, pool.Close, nil

	case "redis":
		var cfg redis.Config
		if err := config.Load(&cfg); err != nil {
			return nil, nil, nil, err
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		cleanup := func() { _ = client.Close() }
		return redisstore.New(client, redisstore.WithPrefix(app.RedisPrefix)),
			[]func(context.Context) error{redis.Healthcheck(client)}, cleanup, nil

	default:
		return nil, nil, nil, errors.Join(errUnknownStore, fmt.Errorf("%q", app.Store))
	}
}
