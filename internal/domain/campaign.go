package domain

import (
	"time"
)

// TriggerKind enumerates the business events that start an enrollment.
type TriggerKind string

const (
	TriggerNewRegistration      TriggerKind = "new_registration"
	TriggerClassReminder        TriggerKind = "class_reminder"
	TriggerInactiveUser         TriggerKind = "inactive_user"
	TriggerCreditExpiring       TriggerKind = "credit_expiring"
	TriggerMilestoneAchieved    TriggerKind = "milestone_achieved"
	TriggerMembershipExpiring   TriggerKind = "membership_expiring"
	TriggerPostClass            TriggerKind = "post_class"
	TriggerAbandonedBooking     TriggerKind = "abandoned_booking"
	TriggerClassPassFirstVisit  TriggerKind = "classpass_first_visit"
	TriggerClassPassSecondVisit TriggerKind = "classpass_second_visit"
	TriggerClassPassHotLead     TriggerKind = "classpass_hot_lead"
)

// TriggerKinds lists every supported trigger kind.
var TriggerKinds = []TriggerKind{
	TriggerNewRegistration,
	TriggerClassReminder,
	TriggerInactiveUser,
	TriggerCreditExpiring,
	TriggerMilestoneAchieved,
	TriggerMembershipExpiring,
	TriggerPostClass,
	TriggerAbandonedBooking,
	TriggerClassPassFirstVisit,
	TriggerClassPassSecondVisit,
	TriggerClassPassHotLead,
}

// Valid reports whether k is one of the known trigger kinds.
func (k TriggerKind) Valid() bool {
	for _, known := range TriggerKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Milestone is an attendance count worth celebrating, with an optional reward.
type Milestone struct {
	Count  int    `json:"count" validate:"gt=0"`
	Reward string `json:"reward,omitempty"`
}

// TriggerConfig holds the kind-specific parameters of a campaign trigger.
// Fields that do not apply to the campaign's kind are ignored.
type TriggerConfig struct {
	DaysBefore            int         `json:"days_before,omitempty" validate:"gte=0"`
	HoursBefore           int         `json:"hours_before,omitempty" validate:"gte=0"`
	InactiveDays          int         `json:"inactive_days,omitempty" validate:"gte=0"`
	DaysBeforeExpiry      int         `json:"days_before_expiry,omitempty" validate:"gte=0"`
	AbandonedAfterMinutes int         `json:"abandoned_after_minutes,omitempty" validate:"gte=0"`
	LookbackHours         int         `json:"lookback_hours,omitempty" validate:"gte=0"`
	Milestones            []Milestone `json:"milestones,omitempty" validate:"dive"`
}

// AudienceType selects how a campaign's audience is resolved.
type AudienceType string

const (
	AudienceAll         AudienceType = "all"
	AudienceMemberships AudienceType = "memberships"
	AudienceLists       AudienceType = "lists"
	// AudienceLegacy is the zero value used by campaigns saved before
	// audience types existed.
	AudienceLegacy AudienceType = ""
)

// AllTiers is the membership tier sentinel that matches every tier.
const AllTiers = "all"

// Audience describes which users a campaign may enroll.
type Audience struct {
	TargetType      AudienceType `json:"target_type" validate:"omitempty,oneof=all memberships lists"`
	IncludeAll      bool         `json:"include_all"`
	MembershipTiers []string     `json:"membership_tiers,omitempty"`
	ListIDs         []string     `json:"list_ids,omitempty"`
}

// Step is one message of a campaign sequence.
type Step struct {
	StepNumber int    `json:"step_number"`
	Subject    string `json:"subject" validate:"required"`
	Body       string `json:"body" validate:"required"`
	DelayDays  int    `json:"delay_days" validate:"gte=0"`
	DelayHours int    `json:"delay_hours" validate:"gte=0"`
	SendSMS    bool   `json:"send_sms"`
	SMSBody    string `json:"sms_body,omitempty" validate:"required_if=SendSMS true"`
}

// Delay returns the step's offset from the trigger time.
func (s Step) Delay() time.Duration {
	return time.Duration(s.DelayDays)*24*time.Hour + time.Duration(s.DelayHours)*time.Hour
}

// CampaignStats are the running counters maintained alongside delivery
// record transitions.
type CampaignStats struct {
	TotalTriggered  int64      `json:"total_triggered"`
	TotalSent       int64      `json:"total_sent"`
	TotalFailed     int64      `json:"total_failed"`
	TotalOpened     int64      `json:"total_opened"`
	TotalClicked    int64      `json:"total_clicked"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
}

// Campaign is an admin-authored automation definition.
type Campaign struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	TriggerKind   TriggerKind   `json:"trigger_kind"`
	TriggerConfig TriggerConfig `json:"trigger_config"`
	Steps         []Step        `json:"steps"`
	Audience      Audience      `json:"audience"`
	Active        bool          `json:"active"`
	Stats         CampaignStats `json:"stats"`
	CreatedBy     string        `json:"created_by,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Step returns the step with the given number, or false if the sequence
// has no such step.
func (c *Campaign) Step(n int) (Step, bool) {
	for _, s := range c.Steps {
		if s.StepNumber == n {
			return s, true
		}
	}
	return Step{}, false
}

// RenumberSteps rewrites step numbers as 1..N in slice order.
func RenumberSteps(steps []Step) []Step {
	out := make([]Step, len(steps))
	for i, s := range steps {
		s.StepNumber = i + 1
		out[i] = s
	}
	return out
}
