// Package bootstrap holds the start-up steps shared by the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/studio-automation/internal/config"
	"github.com/ignite/studio-automation/internal/metrics"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// Init loads configuration and sets up logging and error reporting. The
// returned function flushes Sentry and must run before exit.
func Init(configPath string) (*config.Config, func(), error) {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return nil, func() {}, fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(cfg.Log.Level)
	logger.SetRedactPII(cfg.Log.RedactPII)

	flush, err := logger.EnableSentry(cfg.Sentry.DSN, cfg.Sentry.Environment)
	if err != nil {
		logger.Warn("sentry disabled", "error", err)
	}
	return cfg, flush, nil
}

// OpenRedis connects to Redis. An empty address returns a nil client and
// callers fall back to Postgres advisory locks.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewMetrics creates the service metrics on a registry that also carries
// the Go runtime and process collectors.
func NewMetrics() *metrics.Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.New(reg)
}
