package sending

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// SendGridAPI is the subset of the SendGrid client used for sending.
type SendGridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender sends email through the SendGrid v3 API.
type SendGridSender struct {
	client SendGridAPI
}

// NewSendGridSender creates a SendGrid sender.
func NewSendGridSender(client SendGridAPI) *SendGridSender {
	return &SendGridSender{client: client}
}

// NewSendGridClient creates the API client for key.
func NewSendGridClient(apiKey string) *sendgrid.Client {
	return sendgrid.NewSendClient(apiKey)
}

// SendEmail delivers one message. Non-2xx responses are provider
// rejections; transport errors are returned as errors.
func (s *SendGridSender) SendEmail(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	from := mail.NewEmail(msg.FromName, msg.FromEmail)
	to := mail.NewEmail("", msg.To)
	m := mail.NewSingleEmail(from, msg.Subject, to, "", msg.HTML)
	if len(m.Personalizations) > 0 {
		p := m.Personalizations[0]
		p.SetCustomArg("record_id", msg.RecordID)
		p.SetCustomArg("campaign_id", msg.CampaignID)
	}
	for k, v := range msg.Headers {
		m.SetHeader(k, v)
	}

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("sendgrid request: %w", err)
	}
	if resp.StatusCode >= 300 {
		logger.Warn("sendgrid send rejected", "record_id", msg.RecordID, "email", msg.To, "status", resp.StatusCode)
		return &domain.SendResult{Success: false, Error: fmt.Sprintf("sendgrid status %d: %s", resp.StatusCode, resp.Body)}, nil
	}

	var messageID string
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}
	return &domain.SendResult{Success: true, ProviderID: messageID, SentAt: time.Now().UTC()}, nil
}
