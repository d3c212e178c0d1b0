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

	"github.com/ignite/studio-automation/internal/bootstrap"
	"github.com/ignite/studio-automation/internal/pkg/logger"
	"github.com/ignite/studio-automation/internal/storage"
	"github.com/ignite/studio-automation/internal/tracking"
)

// The edge tracker answers opens and clicks without a database and queues
// the events for the worker to apply.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, flush, err := bootstrap.Init(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tracking: %v\n", err)
		os.Exit(1)
	}
	defer flush()

	if cfg.Tracking.QueueURL == "" {
		logger.Error("tracking.queue_url (TRACKING_QUEUE_URL) is required")
		flush()
		os.Exit(1)
	}

	awsCfg, err := storage.LoadAWSConfig(context.Background(), storage.AWSOptions{
		Region:    cfg.AWS.Region,
		AccessKey: cfg.AWS.AccessKey,
		SecretKey: cfg.AWS.SecretKey,
	})
	if err != nil {
		logger.Error("aws config", "error", err)
		flush()
		os.Exit(1)
	}

	pub := tracking.NewPublisher(sqs.NewFromConfig(awsCfg), cfg.Tracking.QueueURL)
	handler := tracking.NewHandler(pub)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.TrackingPort),
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("tracking service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down tracking service")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("tracking shutdown", "error", err)
	}
}
