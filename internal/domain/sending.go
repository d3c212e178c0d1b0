package domain

import "time"

// Channel identifies a delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// EmailMessage is the fully-rendered message handed to an email sender.
// By the time a message reaches this struct, all placeholder substitution
// and tracking injection is complete.
type EmailMessage struct {
	RecordID   string            `json:"record_id"`
	CampaignID string            `json:"campaign_id"`
	UserID     string            `json:"user_id"`
	To         string            `json:"to"`
	FromName   string            `json:"from_name"`
	FromEmail  string            `json:"from_email"`
	Subject    string            `json:"subject"`
	HTML       string            `json:"html"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// SMSMessage is the fully-rendered message handed to an SMS sender.
type SMSMessage struct {
	RecordID   string `json:"record_id"`
	CampaignID string `json:"campaign_id"`
	UserID     string `json:"user_id"`
	To         string `json:"to"`
	Body       string `json:"body"`
}

// SendResult is the outcome of one delivery attempt. Senders report
// provider rejections here rather than as Go errors so that callers
// always have an outcome to record.
type SendResult struct {
	Success    bool      `json:"success"`
	ProviderID string    `json:"provider_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}
