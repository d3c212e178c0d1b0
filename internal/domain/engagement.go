package domain

import "time"

// EngagementKind distinguishes opens from clicks.
type EngagementKind string

const (
	EngagementOpen  EngagementKind = "open"
	EngagementClick EngagementKind = "click"
)

// EngagementDelta reports which first-time flags an engagement event set.
// Campaign totals move only when a flag is set.
type EngagementDelta struct {
	FirstOpen  bool
	FirstClick bool
}

// EngagementEntry is one row of the recent-activity feed in campaign analytics.
type EngagementEntry struct {
	RecordID   string    `json:"record_id"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	StepNumber int       `json:"step_number"`
	URL        string    `json:"url,omitempty"`
	At         time.Time `json:"at"`
}

// LinkCount aggregates clicks per URL.
type LinkCount struct {
	URL    string `json:"url"`
	Clicks int64  `json:"clicks"`
}
