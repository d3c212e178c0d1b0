package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/studio-automation/internal/config"
	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/metrics"
	"github.com/ignite/studio-automation/internal/service/campaign"
	"github.com/ignite/studio-automation/internal/stats"
	"github.com/ignite/studio-automation/internal/triggers"
)

// CampaignService is the admin surface over campaigns and their records.
type CampaignService interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error)
	Create(ctx context.Context, in campaign.Input) (*domain.Campaign, error)
	Update(ctx context.Context, id string, in campaign.Input) (*domain.Campaign, error)
	Toggle(ctx context.Context, id string) (*domain.Campaign, error)
	Delete(ctx context.Context, id string) error
	ListRecords(ctx context.Context, campaignID string, f campaign.RecordFilter) ([]domain.DeliveryRecord, int, error)
	CancelRecord(ctx context.Context, recordID string) (*domain.DeliveryRecord, error)
}

// TriggerService is the enroll-on-trigger surface.
type TriggerService interface {
	OnRegistration(ctx context.Context, userID string) (triggers.Result, error)
	OnClassCompleted(ctx context.Context, cc triggers.ClassCompletion) (triggers.Result, error)
	OnAttendanceRecorded(ctx context.Context, userID string, count int) (triggers.Result, error)
	Scan(ctx context.Context, kind domain.TriggerKind) (triggers.Result, error)
}

// AnalyticsService summarizes campaign engagement.
type AnalyticsService interface {
	Analytics(ctx context.Context, campaignID string, topN, recentN int) (*stats.Analytics, error)
}

// StatsReconciler recomputes one campaign's counters.
type StatsReconciler interface {
	ReconcileCampaign(ctx context.Context, campaignID string) (domain.CampaignStats, error)
}

// BookingPayer marks bookings paid.
type BookingPayer interface {
	MarkBookingPaid(ctx context.Context, bookingID string, at time.Time) error
}

// TrackingRoutes mounts the open and click endpoints.
type TrackingRoutes interface {
	Mount(r chi.Router)
}

// Deps are the collaborators served over HTTP. Tracking, Payments, Health
// and Metrics are optional; their routes are only mounted when set.
type Deps struct {
	Campaigns    CampaignService
	Triggers     TriggerService
	Analytics    AnalyticsService
	Reconciler   StatsReconciler
	Tracking     TrackingRoutes
	Payments     BookingPayer
	StripeSecret string
	Health       *HealthChecker
	Metrics      *metrics.Metrics
}

// Server represents the API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	return &Server{
		config:  cfg,
		handler: SetupRoutes(NewHandlers(deps), cfg.AllowedOrigins),
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
