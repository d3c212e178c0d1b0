package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"

	"github.com/ignite/studio-automation/internal/api"
	"github.com/ignite/studio-automation/internal/bootstrap"
	"github.com/ignite/studio-automation/internal/engagement"
	"github.com/ignite/studio-automation/internal/pkg/logger"
	"github.com/ignite/studio-automation/internal/repository/postgres"
	"github.com/ignite/studio-automation/internal/service/campaign"
	"github.com/ignite/studio-automation/internal/service/enrollment"
	"github.com/ignite/studio-automation/internal/stats"
	"github.com/ignite/studio-automation/internal/storage"
	"github.com/ignite/studio-automation/internal/tracking"
	"github.com/ignite/studio-automation/internal/triggers"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, flush, err := bootstrap.Init(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
	defer flush()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		flush()
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := bootstrap.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, health will report it down", "error", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	clock := clockwork.NewRealClock()
	m := bootstrap.NewMetrics()
	campaigns := postgres.NewCampaignRepo(db)
	deliveries := postgres.NewDeliveryRepo(db)
	directory := postgres.NewDirectoryRepo(db)

	campaignOpts := []campaign.Option{campaign.WithClock(clock)}
	if cfg.Archive.Enabled && cfg.Archive.Bucket != "" {
		awsCfg, err := storage.LoadAWSConfig(ctx, storage.AWSOptions{
			Region:    cfg.AWS.Region,
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
		})
		if err != nil {
			logger.Error("aws config for archive", "error", err)
			flush()
			os.Exit(1)
		}
		archiver := storage.NewS3Archiver(s3.NewFromConfig(awsCfg), cfg.Archive.Bucket, cfg.Archive.Prefix, clock)
		campaignOpts = append(campaignOpts, campaign.WithArchiver(archiver))
		logger.Info("record archive enabled", "bucket", cfg.Archive.Bucket, "prefix", cfg.Archive.Prefix)
	}

	engine := triggers.NewEngine(campaigns, directory, enrollment.NewScheduler(deliveries, clock),
		triggers.WithClock(clock),
		triggers.WithLocation(cfg.Tracking.Location()),
		triggers.WithMetrics(m),
	)

	deps := api.Deps{
		Campaigns:  campaign.NewService(campaigns, campaignOpts...),
		Triggers:   engine,
		Analytics:  stats.NewService(campaigns, deliveries),
		Reconciler: stats.NewReconciler(campaigns, m),
		Tracking:   tracking.NewHandler(engagement.NewTracker(deliveries, clock, m)),
		Health:     api.NewHealthChecker(db, rdb),
		Metrics:    m,
	}
	if cfg.Stripe.WebhookSecret != "" {
		deps.Payments = directory
		deps.StripeSecret = cfg.Stripe.WebhookSecret
	} else {
		logger.Info("stripe webhook disabled (no secret configured)")
	}
	server := api.NewServer(cfg.Server, deps)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			done <- syscall.SIGTERM
		}
	}()

	<-done
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
