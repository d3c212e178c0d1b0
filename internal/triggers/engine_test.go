package triggers_test

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/repository/memory"
	"github.com/ignite/studio-automation/internal/service/enrollment"
	"github.com/ignite/studio-automation/internal/triggers"
)

// Friday, April 10, 2026 10:00 UTC.
var t0 = time.Date(2026, 4, 10, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memory.Store
	clock  clockwork.FakeClock
	engine *triggers.Engine
	faker  *gofakeit.Faker
}

func newFixture(t *testing.T, opts ...triggers.Option) *fixture {
	t.Helper()
	store := memory.New()
	clock := clockwork.NewFakeClockAt(t0)
	opts = append([]triggers.Option{triggers.WithClock(clock)}, opts...)
	return &fixture{
		store:  store,
		clock:  clock,
		engine: triggers.NewEngine(store, store, enrollment.NewScheduler(store, clock), opts...),
		faker:  gofakeit.New(42),
	}
}

func (f *fixture) campaign(id string, kind domain.TriggerKind, cfg domain.TriggerConfig) {
	f.store.PutCampaign(domain.Campaign{
		ID:            id,
		Name:          id,
		TriggerKind:   kind,
		TriggerConfig: cfg,
		Active:        true,
		Audience:      domain.Audience{TargetType: domain.AudienceAll, IncludeAll: true},
		Steps:         []domain.Step{{StepNumber: 1, Subject: "Hi {{name}}", Body: "Hello"}},
	})
}

func (f *fixture) user(id string, created time.Time) domain.Recipient {
	r := domain.Recipient{ID: id, Name: f.faker.Name(), Email: f.faker.Email(), CreatedAt: created}
	f.store.AddRecipient(r)
	return r
}

func (f *fixture) records(t *testing.T, campaignID string) map[string]domain.DeliveryRecord {
	t.Helper()
	recs, err := f.store.RecordsForCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	out := make(map[string]domain.DeliveryRecord, len(recs))
	for _, r := range recs {
		out[r.UserID] = r
	}
	return out
}

func TestScanNewRegistrationIsRerunSafe(t *testing.T) {
	f := newFixture(t)
	f.campaign("welcome", domain.TriggerNewRegistration, domain.TriggerConfig{})
	fresh := f.user("u-new", t0.Add(-2*time.Hour))
	f.user("u-old", t0.Add(-30*time.Hour))

	res, err := f.engine.Scan(context.Background(), domain.TriggerNewRegistration)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Campaigns)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 1, res.Enrolled)

	res, err = f.engine.Scan(context.Background(), domain.TriggerNewRegistration)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Enrolled)
	assert.Equal(t, 1, res.Duplicates)

	recs := f.records(t, "welcome")
	require.Len(t, recs, 1)
	rec := recs["u-new"]
	assert.Equal(t, fresh.Email, rec.Email)
	assert.Equal(t, "Friday, April 10, 2026", rec.TriggerContext["registrationDate"])
}

func TestScanLookbackHoursWidensWindow(t *testing.T) {
	f := newFixture(t)
	f.campaign("welcome", domain.TriggerNewRegistration, domain.TriggerConfig{LookbackHours: 48})
	f.user("u-old", t0.Add(-30*time.Hour))

	res, err := f.engine.Scan(context.Background(), domain.TriggerNewRegistration)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enrolled)
}

func TestScanTargetsMembershipTiers(t *testing.T) {
	f := newFixture(t)
	f.store.PutCampaign(domain.Campaign{
		ID:          "winback",
		Name:        "winback",
		TriggerKind: domain.TriggerInactiveUser,
		Active:      true,
		Audience:    domain.Audience{TargetType: domain.AudienceMemberships, MembershipTiers: []string{"epidemic"}},
		Steps:       []domain.Step{{StepNumber: 1, Subject: "Miss you", Body: "Come back"}},
	})
	last := t0.AddDate(0, 0, -20)
	for _, m := range []struct{ user, tier string }{{"u-epi", "epidemic"}, {"u-out", "outbreak"}} {
		r := f.user(m.user, t0.AddDate(-1, 0, 0))
		f.store.AddMembership(domain.Membership{
			ID: "m-" + m.user, UserID: m.user, Email: r.Email, TierName: m.tier,
			CreditsRemaining: 3, LastClassAt: &last, Status: domain.MembershipActive,
		})
	}

	res, err := f.engine.Scan(context.Background(), domain.TriggerInactiveUser)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enrolled)
	assert.Equal(t, 1, res.NotTargeted)

	recs := f.records(t, "winback")
	require.Contains(t, recs, "u-epi")
	assert.NotContains(t, recs, "u-out")
	ctx := recs["u-epi"].TriggerContext
	assert.Equal(t, "20", ctx["daysInactive"])
	assert.Equal(t, "3", ctx["creditsRemaining"])
	assert.Equal(t, "epidemic", ctx["tierName"])
	assert.Equal(t, "Saturday, March 21, 2026", ctx["lastClassDate"])
}

func TestScanInactiveUserThreshold(t *testing.T) {
	f := newFixture(t)
	f.campaign("winback", domain.TriggerInactiveUser, domain.TriggerConfig{InactiveDays: 30})
	last := t0.AddDate(0, 0, -20)
	f.user("u1", t0.AddDate(-1, 0, 0))
	f.store.AddMembership(domain.Membership{ID: "m1", UserID: "u1", TierName: "basic", LastClassAt: &last, Status: domain.MembershipActive})

	res, err := f.engine.Scan(context.Background(), domain.TriggerInactiveUser)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Candidates)
}

func TestScanClassReminderWindow(t *testing.T) {
	f := newFixture(t)
	f.campaign("reminder", domain.TriggerClassReminder, domain.TriggerConfig{})
	target := t0.Add(24 * time.Hour)
	bookings := []struct {
		user   string
		start  time.Time
		status domain.BookingStatus
	}{
		{"u-in", target.Add(10 * time.Minute), domain.BookingConfirmed},
		{"u-edge", target.Add(-15 * time.Minute), domain.BookingConfirmed},
		{"u-late", target.Add(20 * time.Minute), domain.BookingConfirmed},
		{"u-cancelled", target, domain.BookingCancelled},
	}
	for _, b := range bookings {
		r := f.user(b.user, t0.AddDate(0, -1, 0))
		f.store.AddBooking(domain.Booking{
			ID: "b-" + b.user, UserID: b.user, Email: r.Email, EventTitle: "Mat Flow",
			EventStart: b.start, EventLocation: "Studio A", Status: b.status, CreatedAt: t0,
		})
	}

	res, err := f.engine.Scan(context.Background(), domain.TriggerClassReminder)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Enrolled)

	recs := f.records(t, "reminder")
	assert.Len(t, recs, 2)
	assert.Contains(t, recs, "u-edge")
	ctx := recs["u-in"].TriggerContext
	assert.Equal(t, "Mat Flow", ctx["eventTitle"])
	assert.Equal(t, "Saturday, April 11, 2026", ctx["eventDate"])
	assert.Equal(t, "10:10 AM", ctx["eventTime"])
	assert.Equal(t, "Studio A", ctx["eventLocation"])
}

func TestScanClassReminderCustomLeadAndLocation(t *testing.T) {
	f := newFixture(t, triggers.WithLocation(time.FixedZone("EST", -5*3600)))
	f.campaign("reminder", domain.TriggerClassReminder, domain.TriggerConfig{HoursBefore: 2})
	r := f.user("u1", t0.AddDate(0, -1, 0))
	f.store.AddBooking(domain.Booking{
		ID: "b1", UserID: "u1", Email: r.Email, EventTitle: "Sculpt",
		EventStart: t0.Add(2 * time.Hour), Status: domain.BookingConfirmed, CreatedAt: t0,
	})

	res, err := f.engine.Scan(context.Background(), domain.TriggerClassReminder)
	require.NoError(t, err)
	require.Equal(t, 1, res.Enrolled)
	assert.Equal(t, "7:00 AM", f.records(t, "reminder")["u1"].TriggerContext["eventTime"])
}

func TestScanAbandonedBooking(t *testing.T) {
	f := newFixture(t)
	f.campaign("abandoned", domain.TriggerAbandonedBooking, domain.TriggerConfig{})
	paid := t0.Add(-time.Hour)
	cases := []struct {
		user    string
		created time.Time
		paidAt  *time.Time
	}{
		{"u-abandoned", t0.Add(-90 * time.Minute), nil},
		{"u-recent", t0.Add(-30 * time.Minute), nil},
		{"u-stale", t0.Add(-25 * time.Hour), nil},
		{"u-paid", t0.Add(-2 * time.Hour), &paid},
	}
	for _, c := range cases {
		r := f.user(c.user, t0.AddDate(0, -1, 0))
		f.store.AddBooking(domain.Booking{
			ID: "b-" + c.user, UserID: c.user, Email: r.Email, EventTitle: "Reformer",
			EventStart: t0.Add(48 * time.Hour), Status: domain.BookingPending, PaidAt: c.paidAt, CreatedAt: c.created,
		})
	}

	res, err := f.engine.Scan(context.Background(), domain.TriggerAbandonedBooking)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enrolled)
	assert.Contains(t, f.records(t, "abandoned"), "u-abandoned")
}

func TestScanExpiringCreditsAndMemberships(t *testing.T) {
	f := newFixture(t)
	f.campaign("credits", domain.TriggerCreditExpiring, domain.TriggerConfig{})
	f.campaign("renewal", domain.TriggerMembershipExpiring, domain.TriggerConfig{})
	soon := t0.AddDate(0, 0, 3)
	later := t0.AddDate(0, 0, 30)
	f.user("u-credits", t0.AddDate(-1, 0, 0))
	f.user("u-empty", t0.AddDate(-1, 0, 0))
	f.user("u-later", t0.AddDate(-1, 0, 0))
	f.store.AddMembership(domain.Membership{ID: "m1", UserID: "u-credits", TierName: "10 pack", CreditsRemaining: 4, ExpiresAt: &soon, Status: domain.MembershipActive})
	f.store.AddMembership(domain.Membership{ID: "m2", UserID: "u-empty", TierName: "unlimited", ExpiresAt: &soon, Status: domain.MembershipActive})
	f.store.AddMembership(domain.Membership{ID: "m3", UserID: "u-later", TierName: "unlimited", CreditsRemaining: 2, ExpiresAt: &later, Status: domain.MembershipActive})

	res, err := f.engine.Scan(context.Background(), domain.TriggerCreditExpiring)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enrolled)
	credits := f.records(t, "credits")
	require.Contains(t, credits, "u-credits")
	assert.Equal(t, "4", credits["u-credits"].TriggerContext["creditsRemaining"])
	assert.Equal(t, "Monday, April 13, 2026", credits["u-credits"].TriggerContext["expiryDate"])

	res, err = f.engine.Scan(context.Background(), domain.TriggerMembershipExpiring)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Enrolled)
	renewal := f.records(t, "renewal")
	assert.Equal(t, "unlimited", renewal["u-empty"].TriggerContext["tierName"])
	assert.NotContains(t, renewal, "u-later")
}

func TestScanClassPassThresholds(t *testing.T) {
	f := newFixture(t)
	f.campaign("first", domain.TriggerClassPassFirstVisit, domain.TriggerConfig{})
	f.campaign("second", domain.TriggerClassPassSecondVisit, domain.TriggerConfig{})
	f.campaign("hot", domain.TriggerClassPassHotLead, domain.TriggerConfig{})

	counts := map[string]int{"u-one": 1, "u-two": 2, "u-three": 3, "u-four": 4}
	for user, n := range counts {
		r := f.user(user, t0.AddDate(0, -2, 0))
		for i := 0; i < n; i++ {
			f.store.AddBooking(domain.Booking{
				ID: user + "-" + string(rune('a'+i)), UserID: user, Email: r.Email,
				Source: domain.BookingSourceClassPass, Status: domain.BookingConfirmed,
				CreatedAt: t0.AddDate(0, 0, -10+i),
			})
		}
	}
	r := f.user("u-direct", t0.AddDate(0, -2, 0))
	f.store.AddBooking(domain.Booking{ID: "direct", UserID: "u-direct", Email: r.Email, Status: domain.BookingConfirmed, CreatedAt: t0})

	for _, kind := range []domain.TriggerKind{domain.TriggerClassPassFirstVisit, domain.TriggerClassPassSecondVisit, domain.TriggerClassPassHotLead} {
		_, err := f.engine.Scan(context.Background(), kind)
		require.NoError(t, err)
	}

	first := f.records(t, "first")
	assert.Len(t, first, 1)
	assert.Contains(t, first, "u-one")
	assert.Equal(t, "1", first["u-one"].TriggerContext["bookingCount"])
	assert.Equal(t, "Tuesday, March 31, 2026", first["u-one"].TriggerContext["acquisitionDate"])

	second := f.records(t, "second")
	assert.Len(t, second, 1)
	assert.Contains(t, second, "u-two")

	hot := f.records(t, "hot")
	assert.Len(t, hot, 2)
	assert.Contains(t, hot, "u-three")
	assert.Contains(t, hot, "u-four")
}

func TestScanIsolatesCandidateFailures(t *testing.T) {
	f := newFixture(t)
	f.campaign("reminder", domain.TriggerClassReminder, domain.TriggerConfig{})
	start := t0.Add(24 * time.Hour)
	for _, u := range []string{"u-ok", "u-gone"} {
		r := f.user(u, t0.AddDate(0, -1, 0))
		f.store.AddBooking(domain.Booking{ID: "b-" + u, UserID: u, Email: r.Email, EventStart: start, Status: domain.BookingConfirmed})
	}
	f.store.RemoveRecipient("u-gone")

	res, err := f.engine.Scan(context.Background(), domain.TriggerClassReminder)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 1, res.Enrolled)
	assert.Equal(t, 1, res.Errors)
}

func TestScanSkipsCampaignsWithoutSteps(t *testing.T) {
	f := newFixture(t)
	f.store.PutCampaign(domain.Campaign{ID: "empty", Name: "empty", TriggerKind: domain.TriggerNewRegistration, Active: true})
	f.user("u1", t0.Add(-time.Hour))

	res, err := f.engine.Scan(context.Background(), domain.TriggerNewRegistration)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Campaigns)
	assert.Equal(t, 0, res.Candidates)
}

func TestScanRejectsSynchronousKinds(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Scan(context.Background(), domain.TriggerPostClass)
	assert.ErrorIs(t, err, triggers.ErrNotScannable)
	_, err = f.engine.Scan(context.Background(), domain.TriggerMilestoneAchieved)
	assert.ErrorIs(t, err, triggers.ErrNotScannable)
}

func TestScanAllCoversEveryScanKind(t *testing.T) {
	f := newFixture(t)
	f.campaign("welcome", domain.TriggerNewRegistration, domain.TriggerConfig{})
	f.user("u1", t0.Add(-time.Hour))

	res := f.engine.ScanAll(context.Background())
	assert.Equal(t, 1, res.Enrolled)
	assert.Equal(t, 0, res.Errors)
}

func TestOnRegistration(t *testing.T) {
	f := newFixture(t)
	f.campaign("welcome", domain.TriggerNewRegistration, domain.TriggerConfig{})
	f.user("u1", t0.Add(-time.Minute))

	res, err := f.engine.OnRegistration(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enrolled)

	// The periodic scan finds the same user and is a no-op.
	res, err = f.engine.Scan(context.Background(), domain.TriggerNewRegistration)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)

	_, err = f.engine.OnRegistration(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrRecipientNotFound)
}

func TestOnClassCompleted(t *testing.T) {
	f := newFixture(t)
	f.campaign("thanks", domain.TriggerPostClass, domain.TriggerConfig{})
	r := f.user("u1", t0.AddDate(0, -1, 0))

	res, err := f.engine.OnClassCompleted(context.Background(), triggers.ClassCompletion{
		UserID: "u1", EventTitle: "Mat Flow", EventStart: t0.Add(-time.Hour), ClassCount: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enrolled)

	rec := f.records(t, "thanks")["u1"]
	assert.Equal(t, r.Email, rec.Email)
	assert.Equal(t, "7", rec.TriggerContext["classCount"])
	assert.Equal(t, "Mat Flow", rec.TriggerContext["eventTitle"])
}

func TestOnAttendanceRecordedDefaultMilestones(t *testing.T) {
	f := newFixture(t)
	f.campaign("milestones", domain.TriggerMilestoneAchieved, domain.TriggerConfig{})
	f.user("u1", t0.AddDate(-1, 0, 0))

	res, err := f.engine.OnAttendanceRecorded(context.Background(), "u1", 9)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Campaigns)
	assert.Equal(t, 0, res.Candidates)

	res, err = f.engine.OnAttendanceRecorded(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enrolled)
	assert.Equal(t, "10", f.records(t, "milestones")["u1"].TriggerContext["milestone"])
}

func TestOnAttendanceRecordedConfiguredMilestone(t *testing.T) {
	f := newFixture(t)
	f.campaign("milestones", domain.TriggerMilestoneAchieved, domain.TriggerConfig{
		Milestones: []domain.Milestone{{Count: 5, Reward: "a free class"}},
	})
	f.user("u1", t0.AddDate(-1, 0, 0))

	res, err := f.engine.OnAttendanceRecorded(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Enrolled)

	res, err = f.engine.OnAttendanceRecorded(context.Background(), "u1", 5)
	require.NoError(t, err)
	require.Equal(t, 1, res.Enrolled)
	ctx := f.records(t, "milestones")["u1"].TriggerContext
	assert.Equal(t, "5", ctx["milestone"])
	assert.Equal(t, "a free class", ctx["reward"])

	_, err = f.engine.OnAttendanceRecorded(context.Background(), "", 5)
	assert.ErrorIs(t, err, triggers.ErrMissingUser)
}

func TestInactiveCampaignsAreIgnored(t *testing.T) {
	f := newFixture(t)
	f.store.PutCampaign(domain.Campaign{
		ID: "paused", Name: "paused", TriggerKind: domain.TriggerNewRegistration,
		Steps: []domain.Step{{StepNumber: 1, Subject: "s", Body: "b"}},
	})
	f.user("u1", t0.Add(-time.Hour))

	res, err := f.engine.Scan(context.Background(), domain.TriggerNewRegistration)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Campaigns)
	assert.Empty(t, f.records(t, "paused"))
}
