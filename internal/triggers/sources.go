package triggers

import (
	"context"
	"strconv"
	"time"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/render"
)

// Defaults for trigger configuration left at zero.
const (
	DefaultLookbackHours         = 24
	DefaultReminderLead          = 24 * time.Hour
	DefaultInactiveDays          = 14
	DefaultDaysBeforeExpiry      = 7
	DefaultAbandonedAfterMinutes = 60

	// ReminderWindow is the half-width of the window around the reminder
	// target time, sized to cover a scan interval of up to 30 minutes.
	ReminderWindow = 15 * time.Minute
	// AbandonedLookback bounds how old a pending booking may be.
	AbandonedLookback = 24 * time.Hour
)

// DefaultMilestones apply when a milestone campaign configures none.
var DefaultMilestones = []domain.Milestone{{Count: 10}, {Count: 25}, {Count: 50}, {Count: 100}}

type sourceFunc func(ctx context.Context, c *domain.Campaign, now time.Time) ([]Candidate, error)

func (e *Engine) sources() map[domain.TriggerKind]sourceFunc {
	return map[domain.TriggerKind]sourceFunc{
		domain.TriggerNewRegistration:      e.newRegistrations,
		domain.TriggerClassReminder:        e.classReminders,
		domain.TriggerInactiveUser:         e.inactiveUsers,
		domain.TriggerCreditExpiring:       e.expiringCredits,
		domain.TriggerMembershipExpiring:   e.expiringMemberships,
		domain.TriggerAbandonedBooking:     e.abandonedBookings,
		domain.TriggerClassPassFirstVisit:  e.classPass(func(n int) bool { return n == 1 }),
		domain.TriggerClassPassSecondVisit: e.classPass(func(n int) bool { return n == 2 }),
		domain.TriggerClassPassHotLead:     e.classPass(func(n int) bool { return n >= 3 }),
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (e *Engine) date(t time.Time) string { return t.In(e.loc).Format(render.DateLayout) }
func (e *Engine) clock12(t time.Time) string {
	return t.In(e.loc).Format(render.TimeLayout)
}

func (e *Engine) newRegistrations(ctx context.Context, c *domain.Campaign, now time.Time) ([]Candidate, error) {
	lookback := time.Duration(orDefault(c.TriggerConfig.LookbackHours, DefaultLookbackHours)) * time.Hour
	users, err := e.dir.RegisteredBetween(ctx, now.Add(-lookback), now)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(users))
	for _, u := range users {
		out = append(out, e.registrationCandidate(u))
	}
	return out, nil
}

func (e *Engine) registrationCandidate(u domain.Recipient) Candidate {
	return Candidate{
		UserID: u.ID,
		Email:  u.Email,
		Vars:   map[string]string{render.KeyRegistrationDate: e.date(u.CreatedAt)},
	}
}

// reminderLead is how far ahead of the class a reminder goes out.
func reminderLead(cfg domain.TriggerConfig) time.Duration {
	lead := time.Duration(cfg.DaysBefore)*24*time.Hour + time.Duration(cfg.HoursBefore)*time.Hour
	if lead <= 0 {
		return DefaultReminderLead
	}
	return lead
}

func (e *Engine) classReminders(ctx context.Context, c *domain.Campaign, now time.Time) ([]Candidate, error) {
	target := now.Add(reminderLead(c.TriggerConfig))
	bookings, err := e.dir.BookingsStartingBetween(ctx, target.Add(-ReminderWindow), target.Add(ReminderWindow))
	if err != nil {
		return nil, err
	}
	return e.bookingCandidates(bookings), nil
}

func (e *Engine) bookingCandidates(bookings []domain.Booking) []Candidate {
	out := make([]Candidate, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, Candidate{UserID: b.UserID, Email: b.Email, Vars: e.eventVars(b)})
	}
	return out
}

func (e *Engine) eventVars(b domain.Booking) map[string]string {
	return map[string]string{
		render.KeyEventTitle:    b.EventTitle,
		render.KeyEventDate:     e.date(b.EventStart),
		render.KeyEventTime:     e.clock12(b.EventStart),
		render.KeyEventLocation: b.EventLocation,
	}
}

func (e *Engine) inactiveUsers(ctx context.Context, c *domain.Campaign, now time.Time) ([]Candidate, error) {
	days := orDefault(c.TriggerConfig.InactiveDays, DefaultInactiveDays)
	members, err := e.dir.InactiveMemberships(ctx, now.AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(members))
	for _, m := range members {
		vars := map[string]string{
			render.KeyCreditsRemaining: strconv.Itoa(m.CreditsRemaining),
			render.KeyTierName:         m.TierName,
		}
		if m.LastClassAt != nil {
			vars[render.KeyLastClassDate] = e.date(*m.LastClassAt)
			vars[render.KeyDaysInactive] = strconv.Itoa(int(now.Sub(*m.LastClassAt).Hours() / 24))
		}
		out = append(out, Candidate{UserID: m.UserID, Email: m.Email, Tier: m.TierName, Vars: vars})
	}
	return out, nil
}

func (e *Engine) expiringCredits(ctx context.Context, c *domain.Campaign, now time.Time) ([]Candidate, error) {
	days := orDefault(c.TriggerConfig.DaysBeforeExpiry, DefaultDaysBeforeExpiry)
	members, err := e.dir.MembershipsWithExpiringCredits(ctx, now, now.AddDate(0, 0, days))
	if err != nil {
		return nil, err
	}
	return e.membershipCandidates(members), nil
}

func (e *Engine) expiringMemberships(ctx context.Context, c *domain.Campaign, now time.Time) ([]Candidate, error) {
	days := orDefault(c.TriggerConfig.DaysBeforeExpiry, DefaultDaysBeforeExpiry)
	members, err := e.dir.MembershipsExpiringBetween(ctx, now, now.AddDate(0, 0, days))
	if err != nil {
		return nil, err
	}
	return e.membershipCandidates(members), nil
}

func (e *Engine) membershipCandidates(members []domain.Membership) []Candidate {
	out := make([]Candidate, 0, len(members))
	for _, m := range members {
		vars := map[string]string{
			render.KeyCreditsRemaining: strconv.Itoa(m.CreditsRemaining),
			render.KeyTierName:         m.TierName,
		}
		if m.ExpiresAt != nil {
			vars[render.KeyExpiryDate] = e.date(*m.ExpiresAt)
		}
		out = append(out, Candidate{UserID: m.UserID, Email: m.Email, Tier: m.TierName, Vars: vars})
	}
	return out
}

func (e *Engine) abandonedBookings(ctx context.Context, c *domain.Campaign, now time.Time) ([]Candidate, error) {
	after := time.Duration(orDefault(c.TriggerConfig.AbandonedAfterMinutes, DefaultAbandonedAfterMinutes)) * time.Minute
	bookings, err := e.dir.PendingBookingsCreatedBetween(ctx, now.Add(-AbandonedLookback), now.Add(-after))
	if err != nil {
		return nil, err
	}
	return e.bookingCandidates(bookings), nil
}

func (e *Engine) classPass(match func(count int) bool) sourceFunc {
	return func(ctx context.Context, _ *domain.Campaign, _ time.Time) ([]Candidate, error) {
		leads, err := e.dir.ClassPassLeads(ctx)
		if err != nil {
			return nil, err
		}
		var out []Candidate
		for _, l := range leads {
			if !match(l.BookingCount) {
				continue
			}
			out = append(out, Candidate{
				UserID: l.UserID,
				Email:  l.Email,
				Vars: map[string]string{
					render.KeyBookingCount:    strconv.Itoa(l.BookingCount),
					render.KeyAcquisitionDate: e.date(l.FirstBookingAt),
				},
			})
		}
		return out, nil
	}
}
