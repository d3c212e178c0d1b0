// Package sending defines the delivery capabilities the dispatch loops
// depend on.
//
// Each email transport (SES, SMTP, SendGrid) and SMS transport (Twilio,
// SNS) implements one of these interfaces; the worker selects one of each
// at startup and injects it. Nothing here holds global client state.
package sending

import (
	"context"

	"github.com/ignite/studio-automation/internal/domain"
)

// EmailSender sends a single rendered email. Implementations must be safe
// for concurrent use and honor ctx cancellation.
//
// A provider rejection is reported as a SendResult with Success=false; a
// returned error means the attempt itself could not be made. Callers treat
// both as a failed delivery.
type EmailSender interface {
	SendEmail(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
}

// SMSSender sends a single rendered text message. Same contract as EmailSender.
type SMSSender interface {
	SendSMS(ctx context.Context, msg *domain.SMSMessage) (*domain.SendResult, error)
}

// TrackingInjector rewrites email HTML to add the open pixel and click
// redirects for one delivery record.
type TrackingInjector interface {
	InjectTracking(html, trackingID string) string
}
