package sending

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// SMTPDialer sends composed messages over SMTP. *gomail.Dialer satisfies it.
type SMTPDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends email through an SMTP relay.
type SMTPSender struct {
	dialer SMTPDialer
	domain string
}

// NewSMTPSender creates an SMTP sender. msgIDDomain is the right-hand
// side of generated Message-ID headers.
func NewSMTPSender(dialer SMTPDialer, msgIDDomain string) *SMTPSender {
	if msgIDDomain == "" {
		msgIDDomain = "localhost"
	}
	return &SMTPSender{dialer: dialer, domain: msgIDDomain}
}

// NewSMTPDialer creates a gomail dialer for host:port with optional auth.
func NewSMTPDialer(host string, port int, username, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, username, password)
}

// SendEmail delivers one message. gomail has no context support, so ctx
// is checked before dialing and the caller bounds the overall attempt.
func (s *SMTPSender) SendEmail(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), s.domain)

	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.FromEmail, msg.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	for k, v := range msg.Headers {
		m.SetHeader(k, v)
	}
	m.SetBody("text/html", msg.HTML)

	if err := s.dialer.DialAndSend(m); err != nil {
		logger.Warn("smtp send failed", "record_id", msg.RecordID, "email", msg.To, "error", err)
		return &domain.SendResult{Success: false, Error: err.Error()}, nil
	}
	return &domain.SendResult{Success: true, ProviderID: messageID, SentAt: time.Now().UTC()}, nil
}
