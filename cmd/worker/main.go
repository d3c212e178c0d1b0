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

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/ignite/studio-automation/internal/bootstrap"
	"github.com/ignite/studio-automation/internal/config"
	"github.com/ignite/studio-automation/internal/dispatch"
	"github.com/ignite/studio-automation/internal/engagement"
	"github.com/ignite/studio-automation/internal/metrics"
	"github.com/ignite/studio-automation/internal/pkg/distlock"
	"github.com/ignite/studio-automation/internal/pkg/logger"
	"github.com/ignite/studio-automation/internal/pkg/phone"
	"github.com/ignite/studio-automation/internal/render"
	"github.com/ignite/studio-automation/internal/repository/postgres"
	"github.com/ignite/studio-automation/internal/service/enrollment"
	"github.com/ignite/studio-automation/internal/service/sending"
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
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
	defer flush()

	if err := run(cfg); err != nil {
		logger.Error("worker failed", "error", err)
		flush()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := bootstrap.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, using postgres advisory locks", "error", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}
	locks := distlock.NewFactory(rdb, db, "studio-automation")

	awsCfg, err := storage.LoadAWSConfig(ctx, storage.AWSOptions{
		Region:    cfg.AWS.Region,
		AccessKey: cfg.AWS.AccessKey,
		SecretKey: cfg.AWS.SecretKey,
	})
	if err != nil {
		return err
	}
	emailSender, err := sending.NewEmailSender(cfg.Email, awsCfg)
	if err != nil {
		return err
	}
	smsSender, err := sending.NewSMSSender(cfg.SMS, awsCfg)
	if err != nil {
		return err
	}
	logger.Info("transports configured", "email", cfg.Email.Provider, "sms", cfg.SMS.Provider)

	clock := clockwork.NewRealClock()
	m := bootstrap.NewMetrics()
	campaigns := postgres.NewCampaignRepo(db)
	deliveries := postgres.NewDeliveryRepo(db)
	directory := postgres.NewDirectoryRepo(db)

	// Dispatch loops
	dispatcher := dispatch.New(dispatch.Deps{
		Store:      deliveries,
		Campaigns:  campaigns,
		Recipients: directory,
		Email:      emailSender,
		SMS:        smsSender,
		Renderer:   render.New(cfg.Studio),
		Injector:   tracking.NewInjector(cfg.Tracking.BaseURL),
		Phones:     phone.NewNormalizer(cfg.SMS.DefaultRegion),
		Clock:      clock,
		Metrics:    m,
	}, dispatch.Config{
		BatchSize:   cfg.Dispatch.BatchSize,
		Concurrency: cfg.Dispatch.Concurrency,
		SendTimeout: cfg.Dispatch.SendTimeout(),
		FromName:    cfg.Email.FromName,
		FromEmail:   cfg.Email.FromEmail,
	})
	loops := []*dispatch.Loop{
		dispatch.NewLoop("email", cfg.Dispatch.Interval(), locks, dispatcher.RunEmail),
		dispatch.NewLoop("sms", cfg.Dispatch.Interval(), locks, dispatcher.RunSMS),
	}
	for _, l := range loops {
		if err := l.Start(); err != nil {
			return err
		}
	}

	// Scheduled jobs
	loc := cfg.Tracking.Location()
	runner := triggers.NewRunner(locks, loc, time.Duration(cfg.Triggers.TimeoutMinutes)*time.Minute)
	if cfg.Triggers.Enabled {
		engine := triggers.NewEngine(campaigns, directory, enrollment.NewScheduler(deliveries, clock),
			triggers.WithClock(clock),
			triggers.WithLocation(loc),
			triggers.WithMetrics(m),
		)
		if err := runner.AddScans(engine, cfg.Triggers.Specs()); err != nil {
			return err
		}
	}
	if cfg.Reconcile.Enabled {
		reconciler := stats.NewReconciler(campaigns, m)
		if err := runner.AddJob("stats:reconcile", cfg.Reconcile.Schedule, reconciler.Run); err != nil {
			return err
		}
	}
	runner.Start()

	// Tracking queue
	var consumer *tracking.Consumer
	if cfg.Tracking.QueueURL != "" {
		tracker := engagement.NewTracker(deliveries, clock, m)
		consumer = tracking.NewConsumer(sqs.NewFromConfig(awsCfg), cfg.Tracking.QueueURL, tracker)
		consumer.Start(ctx)
	}

	metricsSrv := serveMetrics(cfg.Server.MetricsPort, m)

	logger.Info("worker running", "jobs", len(runner.Jobs()), "tracking_queue", cfg.Tracking.QueueURL != "")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down worker")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	for _, l := range loops {
		l.Stop()
	}
	runner.Stop(stopCtx)
	if consumer != nil {
		consumer.Stop()
	}
	_ = metricsSrv.Shutdown(stopCtx)
	logger.Info("worker stopped")
	return nil
}

func serveMetrics(port int, m *metrics.Metrics) *http.Server {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", m.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener", "error", err)
		}
	}()
	return srv
}
