package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/Lucifer7355/pii-anonymizer/logging"
	"github.com/Lucifer7355/pii-anonymizer/masking"
	"github.com/Lucifer7355/pii-anonymizer/server"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the anonymization service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	logger := logging.WithService(a.logger, "anonymizer")

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(server.NewMetrics()),
	}

	var client *redis.Client
	if a.cfg.RedisURL != "" {
		var err error
		client, err = server.NewRedisClient(ctx, a.cfg.RedisURL, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close Redis client")
			}
		}()
		opts = append(opts,
			server.WithRedis(client),
			server.WithKeyStore(server.NewRedisKeyStore(client)),
		)
	}

	if rl := a.cfg.RateLimit; rl.Enabled {
		if client != nil {
			opts = append(opts, server.WithRateLimiter(server.NewRedisRateLimiter(client, rl.MaxTokens, rl.RefillSeconds)))
		} else {
			logger.Warn("REDIS_URL not set; rate limiting is per process")
			opts = append(opts, server.WithRateLimiter(server.NewLocalRateLimiter(rl.MaxTokens, rl.RefillSeconds)))
		}
	}

	return server.New(a.cfg.Server, masking.NewEngine(), opts...).Run(ctx)
}
