package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ignite/studio-automation/internal/api"
	"github.com/ignite/studio-automation/internal/config"
	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/engagement"
	"github.com/ignite/studio-automation/internal/metrics"
	"github.com/ignite/studio-automation/internal/repository/memory"
	"github.com/ignite/studio-automation/internal/service/campaign"
	"github.com/ignite/studio-automation/internal/service/enrollment"
	"github.com/ignite/studio-automation/internal/stats"
	"github.com/ignite/studio-automation/internal/tracking"
	"github.com/ignite/studio-automation/internal/triggers"
)

const stripeSecret = "whsec_test"

var t0 = time.Date(2026, 4, 10, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	clock := clockwork.NewFakeClockAt(t0)
	m := metrics.New(prometheus.NewRegistry())

	engine := triggers.NewEngine(store, store, enrollment.NewScheduler(store, clock), triggers.WithClock(clock))
	tracker := engagement.NewTracker(store, clock, m)

	srv := api.NewServer(config.ServerConfig{}, api.Deps{
		Campaigns:    campaign.NewService(store, campaign.WithClock(clock)),
		Triggers:     engine,
		Analytics:    stats.NewService(store, store),
		Reconciler:   stats.NewReconciler(store, m),
		Tracking:     tracking.NewHandler(tracker),
		Payments:     store,
		StripeSecret: stripeSecret,
		Metrics:      m,
	})
	return &fixture{store: store, handler: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func welcomeInput(name string) campaign.Input {
	return campaign.Input{
		Name:        name,
		TriggerKind: domain.TriggerNewRegistration,
		Steps: []domain.Step{
			{Subject: "Welcome {{firstName}}", Body: "<p>Hi {{firstName}}</p>"},
			{Subject: "Your first class", Body: "<p>Book now</p>", DelayDays: 2},
		},
		Audience: domain.Audience{TargetType: domain.AudienceAll},
		Active:   true,
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// =============================================================================
// CAMPAIGNS
// =============================================================================

func TestCampaignLifecycle(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/campaigns", welcomeInput("Welcome series"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[domain.Campaign](t, w)
	assert.Len(t, created.Steps, 2)
	assert.Equal(t, 2, created.Steps[1].StepNumber)

	w = f.do(t, http.MethodPost, "/api/campaigns", welcomeInput("welcome SERIES"))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/campaigns/"+created.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[domain.Campaign](t, w).Active)

	w = f.do(t, http.MethodGet, "/api/campaigns?active=false", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Data       []domain.Campaign  `json:"data"`
		Pagination api.PaginationMeta `json:"pagination"`
	}](t, w)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 1, page.Pagination.Total)

	w = f.do(t, http.MethodDelete, "/api/campaigns/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/campaigns/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateCampaignValidation(t *testing.T) {
	f := newFixture(t)

	in := welcomeInput("No steps")
	in.Steps = nil
	w := f.do(t, http.MethodPost, "/api/campaigns", in)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	in = welcomeInput("Bad trigger")
	in.TriggerKind = "birthday"
	w = f.do(t, http.MethodPost, "/api/campaigns", in)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestListCampaignsRejectsBadActiveFilter(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/campaigns?active=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// TRIGGERS, RECORDS AND ANALYTICS
// =============================================================================

func TestRegistrationTriggerEnrollsAndRecordsAreListed(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/campaigns", welcomeInput("Welcome"))
	require.Equal(t, http.StatusCreated, w.Code)
	c := decode[domain.Campaign](t, w)

	f.store.AddRecipient(domain.Recipient{ID: "u1", Name: "Ana Lima", Email: "ana@example.com", CreatedAt: t0.Add(-time.Minute)})

	w = f.do(t, http.MethodPost, "/api/triggers/registration", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[triggers.Result](t, w).Enrolled)

	// A second trigger is a no-op, not an error.
	w = f.do(t, http.MethodPost, "/api/triggers/registration", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[triggers.Result](t, w).Enrolled)

	w = f.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/records?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Data       []domain.DeliveryRecord `json:"data"`
		Pagination api.PaginationMeta      `json:"pagination"`
	}](t, w)
	require.Len(t, page.Data, 1)
	assert.Equal(t, 2, page.Pagination.Total)
	assert.True(t, page.Pagination.HasMore)
	assert.Equal(t, 1, page.Data[0].StepNumber)

	recID := page.Data[0].ID
	w = f.do(t, http.MethodPost, "/api/records/"+recID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cancelled := decode[domain.DeliveryRecord](t, w)
	assert.Equal(t, domain.DeliveryCancelled, cancelled.Status)
	assert.Equal(t, domain.SMSSkipped, cancelled.SMSStatus)

	w = f.do(t, http.MethodPost, "/api/records/"+recID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/analytics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	a := decode[stats.Analytics](t, w)
	assert.Equal(t, int64(1), a.Stats.TotalTriggered)
	assert.Equal(t, 0.0, a.OpenRate)

	w = f.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/reconcile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), decode[domain.CampaignStats](t, w).TotalTriggered)
}

func TestTriggerRequestValidation(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/triggers/registration", map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodPost, "/api/triggers/attendance", map[string]any{"user_id": "u1", "count": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodPost, "/api/triggers/registration", map[string]string{"user_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerScan(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/triggers/scan/inactive_user", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/triggers/scan/post_class", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/triggers/scan/birthday", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// STRIPE, TRACKING, OPS
// =============================================================================

func stripeRequest(t *testing.T, payload []byte, secret string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func checkoutEvent(bookingID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1", "object": "event", "type": "checkout.session.completed",
		"created": %d, "api_version": "2020-08-27",
		"data": {"object": {"id": "cs_1", "object": "checkout.session", "metadata": {"booking_id": %q}}}
	}`, t0.Unix(), bookingID))
}

func TestStripeWebhookMarksBookingPaid(t *testing.T) {
	f := newFixture(t)
	f.store.AddRecipient(domain.Recipient{ID: "u1", Email: "ana@example.com"})
	f.store.AddBooking(domain.Booking{ID: "b1", UserID: "u1", Status: domain.BookingPending, CreatedAt: t0.Add(-2 * time.Hour)})

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, stripeRequest(t, checkoutEvent("b1"), stripeSecret))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	b, ok := f.store.Booking("b1")
	require.True(t, ok)
	assert.Equal(t, domain.BookingConfirmed, b.Status)
	require.NotNil(t, b.PaidAt)
	assert.True(t, b.PaidAt.Equal(t0))
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, stripeRequest(t, checkoutEvent("b1"), "whsec_other"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhookUnknownBookingIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, stripeRequest(t, checkoutEvent("b404"), stripeSecret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_booking")
}

func TestTrackingRoutesAreMounted(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/track/open/unknown-token", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))

	w = f.do(t, http.MethodGet, "/track/click/unknown-token?url=https://studio.example/book", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://studio.example/book", w.Header().Get("Location"))
}

func TestMetricsAndHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthCheckerWithoutDependencies(t *testing.T) {
	hc := api.NewHealthChecker(nil, nil)
	srv := api.NewServer(config.ServerConfig{}, api.Deps{Health: hc})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, "healthy", body["status"])
}
