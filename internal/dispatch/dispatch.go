// Package dispatch sends due delivery records.
//
// Email and SMS run as independent loops over the same records: email
// drives the record status (scheduled -> sent | failed) and the campaign's
// sent/failed counters, SMS drives the separate sms status
// (not_sent -> sent | failed | skipped) and touches no campaign counter.
// A failed send is terminal; nothing here retries it.
//
// Right before a send the record's channel is claimed for the send timeout
// plus a grace period. Another dispatcher that selects the same record in
// that window, for example after the loop lock lapsed, leaves it alone.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/metrics"
	"github.com/ignite/studio-automation/internal/pkg/logger"
	"github.com/ignite/studio-automation/internal/pkg/phone"
	"github.com/ignite/studio-automation/internal/render"
	"github.com/ignite/studio-automation/internal/service/sending"
)

// Store is the delivery-record persistence the loops need. Every Claim, Mark
// and Update call is conditional on the record still being in its pending
// state and reports false when it was not.
//
// DueEmail and DueSMS leave out records whose channel is claimed past now.
// ClaimSend takes that claim until the given time; it reports false when
// the channel is no longer pending or another dispatcher holds a live claim.
type Store interface {
	DueEmail(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryRecord, error)
	DueSMS(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryRecord, error)
	ClaimSend(ctx context.Context, id string, ch domain.Channel, now, until time.Time) (bool, error)
	AssignTrackingID(ctx context.Context, id, token string) (string, error)
	MarkSent(ctx context.Context, id string, at time.Time, providerID string) (bool, error)
	MarkFailed(ctx context.Context, id, reason string, at time.Time) (bool, error)
	UpdateSMSStatus(ctx context.Context, id string, status domain.SMSStatus, detail, providerID string, at time.Time) (bool, error)
}

// CampaignReader resolves campaigns by id.
type CampaignReader interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
}

// RecipientReader resolves recipients by user id.
type RecipientReader interface {
	Recipient(ctx context.Context, userID string) (*domain.Recipient, error)
}

// Config tunes a Dispatcher.
type Config struct {
	BatchSize   int
	Concurrency int
	SendTimeout time.Duration
	FromName    string
	FromEmail   string
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
}

// Deps are the collaborators of a Dispatcher. SMS may be nil, in which
// case RunSMS marks due SMS channels skipped.
type Deps struct {
	Store      Store
	Campaigns  CampaignReader
	Recipients RecipientReader
	Email      sending.EmailSender
	SMS        sending.SMSSender
	Renderer   *render.Renderer
	Injector   sending.TrackingInjector
	Phones     *phone.Normalizer
	Clock      clockwork.Clock
	Metrics    *metrics.Metrics
}

// claimGrace is added to the send timeout to size a record's claim, so a
// claim outlives the send it guards.
const claimGrace = time.Minute

// Dispatcher runs dispatch passes for both channels.
type Dispatcher struct {
	Deps
	cfg Config
}

// New creates a Dispatcher.
func New(deps Deps, cfg Config) *Dispatcher {
	cfg.applyDefaults()
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Phones == nil {
		deps.Phones = phone.NewNormalizer("")
	}
	return &Dispatcher{Deps: deps, cfg: cfg}
}

// Result tallies one dispatch pass.
type Result struct {
	Selected int `json:"selected"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	// Deferred records hit a transient lookup error and stay pending for
	// the next pass.
	Deferred int `json:"deferred"`
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeDeferred
	outcomeNone // lost a race with another transition
)

func (o outcome) String() string {
	switch o {
	case outcomeSent:
		return "sent"
	case outcomeFailed:
		return "failed"
	case outcomeSkipped:
		return "skipped"
	case outcomeDeferred:
		return "deferred"
	default:
		return "none"
	}
}

type tally struct {
	mu sync.Mutex
	r  Result
}

func (t *tally) add(o outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch o {
	case outcomeSent:
		t.r.Sent++
	case outcomeFailed:
		t.r.Failed++
	case outcomeSkipped:
		t.r.Skipped++
	case outcomeDeferred:
		t.r.Deferred++
	}
}

// claim takes the record's channel for the duration of one send. A record
// claimed elsewhere yields outcomeNone.
func (d *Dispatcher) claim(ctx context.Context, rec *domain.DeliveryRecord, ch domain.Channel) (outcome, bool) {
	now := d.Clock.Now().UTC()
	ok, err := d.Store.ClaimSend(ctx, rec.ID, ch, now, now.Add(d.cfg.SendTimeout+claimGrace))
	if err != nil {
		logger.With("record_id", rec.ID, "channel", string(ch)).WithError(err).Warn("claim failed, will retry next pass")
		return outcomeDeferred, false
	}
	if !ok {
		logger.Debug("record claimed elsewhere", "record_id", rec.ID, "channel", string(ch))
		return outcomeNone, false
	}
	return outcomeNone, true
}

// callWithTimeout bounds a send even if the sender ignores ctx.
func callWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (*domain.SendResult, error)) (*domain.SendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		res *domain.SendResult
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		res, err := fn(ctx)
		ch <- reply{res, err}
	}()
	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// failureReason extracts a human-readable reason from a send outcome.
func failureReason(res *domain.SendResult, err error) string {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "send timed out"
		}
		return err.Error()
	}
	if res == nil {
		return "sender returned no result"
	}
	if res.Error != "" {
		return res.Error
	}
	return "provider rejected message"
}
