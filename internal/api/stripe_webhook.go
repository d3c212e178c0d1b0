package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/httputil"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

const maxWebhookBytes = 64 << 10

// HandleStripeWebhook marks a booking paid when its checkout completes.
// The booking id travels in the checkout session metadata as booking_id.
// Other event types are acknowledged and ignored.
//
//	POST /webhooks/stripe
func (h *Handlers) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		httputil.BadRequest(w, "unreadable body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.deps.StripeSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		logger.Warn("stripe webhook rejected", "error", err)
		httputil.BadRequest(w, "invalid signature")
		return
	}

	if event.Type != "checkout.session.completed" {
		httputil.OK(w, map[string]string{"status": "ignored"})
		return
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		httputil.BadRequest(w, "malformed checkout session")
		return
	}
	bookingID := sess.Metadata["booking_id"]
	if bookingID == "" {
		logger.Info("checkout completed without booking id", "event_id", event.ID)
		httputil.OK(w, map[string]string{"status": "ignored"})
		return
	}

	paidAt := time.Now().UTC()
	if event.Created > 0 {
		paidAt = time.Unix(event.Created, 0).UTC()
	}
	if err := h.deps.Payments.MarkBookingPaid(r.Context(), bookingID, paidAt); err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			logger.Warn("checkout for unknown booking", "booking_id", bookingID, "event_id", event.ID)
			httputil.OK(w, map[string]string{"status": "unknown_booking"})
			return
		}
		httputil.InternalError(w, err)
		return
	}
	logger.Info("booking paid", "booking_id", bookingID, "event_id", event.ID)
	httputil.OK(w, map[string]string{"status": "paid"})
}
