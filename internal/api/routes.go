package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all routes. Tracking, Stripe, health and metrics
// routes sit outside /api so that mail clients and probes reach them
// without admin credentials.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if h.deps.Metrics != nil {
		r.Use(h.deps.Metrics.Middleware)
	}

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	if hc := h.deps.Health; hc != nil {
		r.Get("/health", hc.HandleHealth)
		r.Get("/health/live", hc.HandleLiveness)
		r.Get("/health/ready", hc.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}
	if h.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.deps.Metrics.Handler())
	}

	if h.deps.Tracking != nil {
		h.deps.Tracking.Mount(r)
	}
	if h.deps.Payments != nil {
		r.Post("/webhooks/stripe", h.HandleStripeWebhook)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetCampaign)
				r.Put("/", h.UpdateCampaign)
				r.Delete("/", h.DeleteCampaign)
				r.Post("/toggle", h.ToggleCampaign)
				r.Get("/records", h.ListRecords)
				r.Get("/analytics", h.GetAnalytics)
				r.Post("/reconcile", h.ReconcileCampaign)
			})
		})
		r.Post("/records/{id}/cancel", h.CancelRecord)

		r.Route("/triggers", func(r chi.Router) {
			r.Post("/registration", h.TriggerRegistration)
			r.Post("/class-completed", h.TriggerClassCompleted)
			r.Post("/attendance", h.TriggerAttendance)
			r.Post("/scan/{kind}", h.TriggerScan)
		})
	})

	return r
}
