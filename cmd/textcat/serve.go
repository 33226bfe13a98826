package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/textcat/internal/api"
	"github.com/samcharles93/textcat/internal/config"
	"github.com/samcharles93/textcat/internal/inference"
	"github.com/samcharles93/textcat/internal/logger"
	"github.com/samcharles93/textcat/internal/metrics"
	"github.com/samcharles93/textcat/internal/ratelimit"
	"github.com/samcharles93/textcat/internal/store"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		storePath   string
		noAuth      bool
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the categorization REST API",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (overrides server.address)",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.StringFlag{
				Name:        "store",
				Usage:       "SQLite prediction log (overrides store.path)",
				Destination: &storePath,
			},
			&cli.BoolFlag{
				Name:        "no-auth",
				Usage:       "disable bearer token authentication",
				Destination: &noAuth,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			cfg, err := loadConfig(cmd)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if cmd.IsSet("addr") {
				cfg.Server.Address = addr
			}
			if cmd.IsSet("store") {
				cfg.Store.Path = storePath
			}
			if noAuth {
				cfg.Auth.Enabled = false
			}

			loaded, err := inference.Load(ctx, cfg)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			opts := api.Options{
				Predictor:         loaded.Pipeline,
				Metrics:           metrics.New(loaded.Pipeline.Version()),
				Logger:            log,
				RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
				MaxBatchSize:      cfg.Server.MaxBatchSize,
				RequestTimeout:    cfg.Server.RequestTimeout,
				BodyLimit:         cfg.Server.BodyLimitBytes,
			}
			if cfg.RateLimit.Backend == config.RateLimitRedis && cfg.RateLimit.RequestsPerMinute > 0 {
				rdb := redis.NewClient(&redis.Options{
					Addr:     cfg.RateLimit.Redis.Addr,
					Password: cfg.RateLimit.Redis.Password,
					DB:       cfg.RateLimit.Redis.DB,
				})
				defer func() { _ = rdb.Close() }()
				if err := rdb.Ping(ctx).Err(); err != nil {
					return cli.Exit(fmt.Sprintf("error: redis %s: %v", cfg.RateLimit.Redis.Addr, err), 1)
				}
				opts.RateLimiter = ratelimit.NewRedis(rdb, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Redis.KeyPrefix)
				log.Info("rate limit shared via redis", "addr", cfg.RateLimit.Redis.Addr)
			}
			if cfg.Auth.Enabled {
				opts.Auth = api.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
			} else {
				log.Warn("authentication disabled")
			}
			if cfg.Store.Path != "" {
				db, err := store.Open(ctx, cfg.Store.Path)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				defer func() { _ = db.Close() }()
				async := store.NewAsyncLogger(db, log, 256)
				defer async.Close()
				opts.Feedback = db
				opts.Predictions = async
				log.Info("prediction log enabled", "path", cfg.Store.Path)
			}

			server := api.NewServer(opts)
			log.Info("starting server",
				"address", cfg.Server.Address,
				"model_version", loaded.Pipeline.Version(),
				"categories", len(loaded.Pipeline.Labels()),
				"auth", cfg.Auth.Enabled,
			)
			sc := echo.StartConfig{
				Address: cfg.Server.Address,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, server.Handler())
		},
	}
}
