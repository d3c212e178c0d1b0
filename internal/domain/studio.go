package domain

import (
	"strings"
	"time"
)

// Recipient is a studio user as seen by the automation engine.
type Recipient struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	SMSOptOut      bool      `json:"sms_opt_out"`
	MembershipTier string    `json:"membership_tier,omitempty"`
	ListIDs        []string  `json:"list_ids,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// FirstName returns the first word of the recipient's name.
func (r *Recipient) FirstName() string {
	fields := strings.Fields(r.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// MembershipStatus enumerates membership states relevant to triggers.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "active"
	MembershipExpired   MembershipStatus = "expired"
	MembershipCancelled MembershipStatus = "cancelled"
)

// Membership is a user's purchased plan with credits and an expiry.
type Membership struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Email            string           `json:"email"`
	TierName         string           `json:"tier_name"`
	CreditsRemaining int              `json:"credits_remaining"`
	ExpiresAt        *time.Time       `json:"expires_at,omitempty"`
	LastClassAt      *time.Time       `json:"last_class_at,omitempty"`
	Status           MembershipStatus `json:"status"`
}

// BookingStatus enumerates booking states relevant to triggers.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// BookingSourceClassPass marks bookings acquired through ClassPass.
const BookingSourceClassPass = "classpass"

// Booking is a reservation of a class spot, joined with its event.
type Booking struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Email         string        `json:"email"`
	EventID       string        `json:"event_id"`
	EventTitle    string        `json:"event_title"`
	EventStart    time.Time     `json:"event_start"`
	EventLocation string        `json:"event_location"`
	Status        BookingStatus `json:"status"`
	Source        string        `json:"source,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ClassPassLead aggregates a user's ClassPass-sourced bookings.
type ClassPassLead struct {
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	BookingCount   int       `json:"booking_count"`
	FirstBookingAt time.Time `json:"first_booking_at"`
}

// StudioInfo holds the system constants available to every template.
type StudioInfo struct {
	Name    string `json:"name" yaml:"name"`
	Phone   string `json:"phone" yaml:"phone"`
	SiteURL string `json:"site_url" yaml:"site_url"`
}
