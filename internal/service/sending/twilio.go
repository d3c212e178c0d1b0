package sending

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/httpretry"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// TwilioConfig holds Twilio account settings.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string
}

// TwilioSender sends SMS through the Twilio Messages REST API.
type TwilioSender struct {
	cfg    TwilioConfig
	client httpretry.HTTPDoer
}

// NewTwilioSender creates a Twilio sender. A nil client gets a retrying
// client that only retries 429 responses: message creation is not
// idempotent, so transport errors and 5xx are not retried.
func NewTwilioSender(cfg TwilioConfig, client httpretry.HTTPDoer) (*TwilioSender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		return nil, fmt.Errorf("twilio: account sid, auth token and from number are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	if client == nil {
		client = httpretry.NewRetryClient(&http.Client{Timeout: 15 * time.Second}, 2,
			httpretry.WithStatuses(http.StatusTooManyRequests),
			httpretry.WithoutNetworkRetry(),
		)
	}
	return &TwilioSender{cfg: cfg, client: client}, nil
}

type twilioMessage struct {
	SID       string `json:"sid"`
	Status    string `json:"status"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	ErrorCode *int   `json:"error_code"`
}

// SendSMS sends one message. Twilio API error responses are reported as a
// failed SendResult carrying Twilio's error text.
func (t *TwilioSender) SendSMS(ctx context.Context, msg *domain.SMSMessage) (*domain.SendResult, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", strings.TrimRight(t.cfg.BaseURL, "/"), t.cfg.AccountSID)

	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", t.cfg.FromNumber)
	form.Set("Body", msg.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("twilio: build request: %w", err)
	}
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twilio request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("twilio: read response: %w", err)
	}
	var out twilioMessage
	_ = json.Unmarshal(body, &out)

	if resp.StatusCode >= 300 {
		reason := out.Message
		if reason == "" {
			reason = strings.TrimSpace(string(body))
		}
		logger.Warn("twilio send rejected", "record_id", msg.RecordID, "phone", msg.To, "status", resp.StatusCode, "code", out.Code)
		return &domain.SendResult{Success: false, Error: fmt.Sprintf("twilio %d: %s", resp.StatusCode, reason)}, nil
	}
	return &domain.SendResult{Success: true, ProviderID: out.SID, SentAt: time.Now().UTC()}, nil
}
