package domain

import "time"

// DeliveryStatus enumerates the email-channel lifecycle of a delivery record.
type DeliveryStatus string

const (
	DeliveryScheduled DeliveryStatus = "scheduled"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

// IsTerminal returns true once the record has left the scheduled state.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliverySent || s == DeliveryFailed || s == DeliveryCancelled
}

// IsActive reports whether a record in this state blocks a new enrollment
// for the same campaign and recipient.
func (s DeliveryStatus) IsActive() bool {
	return s == DeliveryScheduled || s == DeliverySent
}

// SMSStatus enumerates the independent SMS-channel lifecycle.
type SMSStatus string

const (
	SMSNotSent SMSStatus = "not_sent"
	SMSSent    SMSStatus = "sent"
	SMSFailed  SMSStatus = "failed"
	SMSSkipped SMSStatus = "skipped"
)

// ClickEvent is one recorded click on a tracked link.
type ClickEvent struct {
	URL       string    `json:"url"`
	ClickedAt time.Time `json:"clicked_at"`
}

// DeliveryRecord is the per-recipient, per-step unit of scheduling and
// dispatch. All records created by one enrollment share an EnrollmentID.
type DeliveryRecord struct {
	ID                string            `json:"id"`
	CampaignID        string            `json:"campaign_id"`
	EnrollmentID      string            `json:"enrollment_id"`
	UserID            string            `json:"user_id"`
	Email             string            `json:"email"`
	StepNumber        int               `json:"step_number"`
	TriggerContext    map[string]string `json:"trigger_context,omitempty"`
	ScheduledFor      time.Time         `json:"scheduled_for"`
	SentAt            *time.Time        `json:"sent_at,omitempty"`
	Status            DeliveryStatus    `json:"status"`
	Error             string            `json:"error,omitempty"`
	ProviderMessageID string            `json:"provider_message_id,omitempty"`

	SMSStatus     SMSStatus  `json:"sms_status"`
	SMSError      string     `json:"sms_error,omitempty"`
	SMSProviderID string     `json:"sms_provider_id,omitempty"`
	SMSSentAt     *time.Time `json:"sms_sent_at,omitempty"`

	TrackingID string       `json:"tracking_id,omitempty"`
	Opened     bool         `json:"opened"`
	OpenedAt   *time.Time   `json:"opened_at,omitempty"`
	OpenCount  int          `json:"open_count"`
	Clicked    bool         `json:"clicked"`
	ClickedAt  *time.Time   `json:"clicked_at,omitempty"`
	ClickCount int          `json:"click_count"`
	Clicks     []ClickEvent `json:"clicks,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsDue reports whether the record's scheduled time has been reached.
func (r *DeliveryRecord) IsDue(now time.Time) bool {
	return !r.ScheduledFor.After(now)
}

// ApplyOpen records one open at the given time and reports whether it was
// the first open of this record. Events may arrive out of order, so OpenedAt
// keeps the earliest time seen.
func (r *DeliveryRecord) ApplyOpen(at time.Time) bool {
	r.OpenCount++
	first := !r.Opened
	r.Opened = true
	r.OpenedAt = earliest(r.OpenedAt, at)
	return first
}

// ApplyClick appends a click event and reports whether it was the first
// click of this record. ClickedAt keeps the earliest click time.
func (r *DeliveryRecord) ApplyClick(url string, at time.Time) bool {
	r.Clicks = append(r.Clicks, ClickEvent{URL: url, ClickedAt: at})
	r.ClickCount++
	first := !r.Clicked
	r.Clicked = true
	r.ClickedAt = earliest(r.ClickedAt, at)
	return first
}

func earliest(cur *time.Time, at time.Time) *time.Time {
	if cur != nil && !at.Before(*cur) {
		return cur
	}
	t := at
	return &t
}
