package sending

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// LogSender accepts every message and writes it to the log instead of a
// provider. It is the development transport for both channels.
type LogSender struct{}

// SendEmail logs msg and reports success.
func (LogSender) SendEmail(_ context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	id := "log-" + uuid.New().String()
	logger.Info("email not sent (log provider)", "record_id", msg.RecordID, "campaign_id", msg.CampaignID,
		"email", msg.To, "subject", msg.Subject, "provider_id", id)
	return &domain.SendResult{Success: true, ProviderID: id, SentAt: time.Now().UTC()}, nil
}

// SendSMS logs msg and reports success.
func (LogSender) SendSMS(_ context.Context, msg *domain.SMSMessage) (*domain.SendResult, error) {
	id := "log-" + uuid.New().String()
	logger.Info("sms not sent (log provider)", "record_id", msg.RecordID, "campaign_id", msg.CampaignID,
		"phone", msg.To, "length", len(msg.Body), "provider_id", id)
	return &domain.SendResult{Success: true, ProviderID: id, SentAt: time.Now().UTC()}, nil
}
