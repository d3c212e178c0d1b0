// Package triggers finds recipients for each campaign trigger kind and
// enrolls the ones the campaign's audience targets.
//
// Scan-based kinds read the studio directory on a schedule; the
// synchronous kinds (milestone, post-class, and registration when called
// directly) run inside the business event that fires them. Every path is
// safe to repeat because enrollment ignores users with an active sequence.
package triggers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/metrics"
	"github.com/ignite/studio-automation/internal/pkg/logger"
	"github.com/ignite/studio-automation/internal/targeting"
)

// CampaignSource lists the campaigns a trigger kind should evaluate.
type CampaignSource interface {
	ListActiveByTrigger(ctx context.Context, kind domain.TriggerKind) ([]domain.Campaign, error)
}

// Directory is the read side of the studio's user, membership and booking
// data. Time windows are inclusive, except RegisteredBetween which
// excludes its upper bound.
type Directory interface {
	Recipient(ctx context.Context, userID string) (*domain.Recipient, error)
	RegisteredBetween(ctx context.Context, from, to time.Time) ([]domain.Recipient, error)
	BookingsStartingBetween(ctx context.Context, from, to time.Time) ([]domain.Booking, error)
	InactiveMemberships(ctx context.Context, lastClassBefore time.Time) ([]domain.Membership, error)
	MembershipsWithExpiringCredits(ctx context.Context, from, to time.Time) ([]domain.Membership, error)
	MembershipsExpiringBetween(ctx context.Context, from, to time.Time) ([]domain.Membership, error)
	PendingBookingsCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Booking, error)
	ClassPassLeads(ctx context.Context) ([]domain.ClassPassLead, error)
}

// Enroller schedules a campaign sequence for one user. It returns nil
// records when the user already has an active enrollment.
type Enroller interface {
	ScheduleForUser(ctx context.Context, c *domain.Campaign, userID, email string, vars map[string]string) ([]domain.DeliveryRecord, error)
}

// Engine evaluates triggers.
type Engine struct {
	campaigns CampaignSource
	dir       Directory
	enroller  Enroller
	clock     clockwork.Clock
	loc       *time.Location
	metrics   *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(c clockwork.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithLocation sets the time zone used to format dates and times captured
// into template context.
func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.loc = loc } }

// WithMetrics enables Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// NewEngine creates an Engine.
func NewEngine(campaigns CampaignSource, dir Directory, enroller Enroller, opts ...Option) *Engine {
	e := &Engine{
		campaigns: campaigns,
		dir:       dir,
		enroller:  enroller,
		clock:     clockwork.NewRealClock(),
		loc:       time.UTC,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Candidate is a user a trigger selected, with the context captured for
// templates. Tier overrides the directory tier for membership-based kinds.
type Candidate struct {
	UserID string
	Email  string
	Tier   string
	Vars   map[string]string
}

// Result tallies one evaluation.
type Result struct {
	Kind        domain.TriggerKind `json:"kind"`
	Campaigns   int                `json:"campaigns"`
	Candidates  int                `json:"candidates"`
	Enrolled    int                `json:"enrolled"`
	Duplicates  int                `json:"duplicates"`
	NotTargeted int                `json:"not_targeted"`
	Errors      int                `json:"errors"`
}

func (r *Result) merge(o Result) {
	r.Campaigns += o.Campaigns
	r.Candidates += o.Candidates
	r.Enrolled += o.Enrolled
	r.Duplicates += o.Duplicates
	r.NotTargeted += o.NotTargeted
	r.Errors += o.Errors
}

var (
	// ErrNotScannable is returned by Scan for kinds that only fire synchronously.
	ErrNotScannable = errors.New("trigger kind fires only from business events")
	ErrMissingUser  = errors.New("user id is required")
)

// ScanKinds are the kinds evaluated by periodic scans.
var ScanKinds = []domain.TriggerKind{
	domain.TriggerNewRegistration,
	domain.TriggerClassReminder,
	domain.TriggerInactiveUser,
	domain.TriggerCreditExpiring,
	domain.TriggerMembershipExpiring,
	domain.TriggerAbandonedBooking,
	domain.TriggerClassPassFirstVisit,
	domain.TriggerClassPassSecondVisit,
	domain.TriggerClassPassHotLead,
}

// Scan evaluates every active campaign of a scan-based kind.
func (e *Engine) Scan(ctx context.Context, kind domain.TriggerKind) (Result, error) {
	source, ok := e.sources()[kind]
	if !ok {
		return Result{Kind: kind}, fmt.Errorf("%s: %w", kind, ErrNotScannable)
	}
	res, err := e.evaluate(ctx, kind, func(c *domain.Campaign) ([]Candidate, error) {
		return source(ctx, c, e.clock.Now().UTC())
	})
	e.metrics.RecordTriggerScan(string(kind), err)
	if err == nil && (res.Enrolled > 0 || res.Errors > 0) {
		logger.Info("trigger scan", "trigger", string(kind), "campaigns", res.Campaigns, "candidates", res.Candidates,
			"enrolled", res.Enrolled, "duplicates", res.Duplicates, "errors", res.Errors)
	}
	return res, err
}

// ScanAll runs every scan-based kind. A failing kind is logged and does
// not stop the others.
func (e *Engine) ScanAll(ctx context.Context) Result {
	var total Result
	for _, kind := range ScanKinds {
		res, err := e.Scan(ctx, kind)
		if err != nil {
			logger.Error("trigger scan failed", "trigger", string(kind), "error", err)
			total.Errors++
			continue
		}
		total.merge(res)
	}
	return total
}

// evaluate runs candidates(c) through targeting and enrollment for every
// active campaign of kind. Only listing the campaigns can fail the whole
// evaluation; per-campaign and per-candidate errors are counted.
func (e *Engine) evaluate(ctx context.Context, kind domain.TriggerKind, candidates func(*domain.Campaign) ([]Candidate, error)) (Result, error) {
	res := Result{Kind: kind}
	campaigns, err := e.campaigns.ListActiveByTrigger(ctx, kind)
	if err != nil {
		return res, fmt.Errorf("list %s campaigns: %w", kind, err)
	}
	res.Campaigns = len(campaigns)

	for i := range campaigns {
		c := &campaigns[i]
		if len(c.Steps) == 0 {
			logger.Warn("campaign has no steps, skipping", "campaign_id", c.ID, "trigger", string(kind))
			continue
		}
		cands, err := candidates(c)
		if err != nil {
			logger.Error("candidate query failed", "campaign_id", c.ID, "trigger", string(kind), "error", err)
			res.Errors++
			continue
		}
		res.Candidates += len(cands)
		for _, cand := range cands {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			e.enroll(ctx, c, cand, &res)
		}
	}
	return res, nil
}

func (e *Engine) enroll(ctx context.Context, c *domain.Campaign, cand Candidate, res *Result) {
	kind := string(c.TriggerKind)
	profile, err := e.dir.Recipient(ctx, cand.UserID)
	if err != nil {
		logger.Warn("candidate profile lookup failed", "campaign_id", c.ID, "user_id", cand.UserID, "error", err)
		res.Errors++
		e.metrics.RecordEnrollment(kind, "error")
		return
	}
	tier := profile.MembershipTier
	if cand.Tier != "" {
		tier = cand.Tier
	}
	if !targeting.ShouldTarget(c, cand.UserID, tier, profile.ListIDs) {
		res.NotTargeted++
		e.metrics.RecordEnrollment(kind, "not_targeted")
		return
	}
	email := cand.Email
	if email == "" {
		email = profile.Email
	}
	recs, err := e.enroller.ScheduleForUser(ctx, c, cand.UserID, email, cand.Vars)
	switch {
	case err != nil:
		logger.Error("enrollment failed", "campaign_id", c.ID, "user_id", cand.UserID, "error", err)
		res.Errors++
		e.metrics.RecordEnrollment(kind, "error")
	case recs == nil:
		res.Duplicates++
		e.metrics.RecordEnrollment(kind, "duplicate")
	default:
		res.Enrolled++
		e.metrics.RecordEnrollment(kind, "enrolled")
	}
}
