package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/logger"
	"github.com/ignite/studio-automation/internal/render"
)

// Reasons recorded on skipped SMS channels.
const (
	SkipNotEnabled = "sms not enabled for step"
	SkipNoPhone    = "recipient has no phone number"
	SkipBadPhone   = "recipient phone number is invalid"
	SkipOptedOut   = "recipient opted out of sms"
	SkipNoProvider = "no sms provider configured"
)

// RunSMS settles the SMS channel of every record due now. Skips and
// failures never touch campaign counters. Without an SMS sender, channels
// that would have been sent are skipped instead of left pending.
func (d *Dispatcher) RunSMS(ctx context.Context) (Result, error) {
	start := time.Now()
	now := d.Clock.Now().UTC()
	due, err := d.Store.DueSMS(ctx, now, d.cfg.BatchSize)
	if err != nil {
		return Result{}, fmt.Errorf("select due sms: %w", err)
	}

	t := &tally{r: Result{Selected: len(due)}}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for i := range due {
		rec := due[i]
		g.Go(func() error {
			o := d.sendSMS(gctx, &rec)
			t.add(o)
			d.Metrics.RecordDelivery(string(domain.ChannelSMS), o.String())
			return nil
		})
	}
	_ = g.Wait()
	d.Metrics.ObserveDispatch(string(domain.ChannelSMS), time.Since(start))

	if t.r.Selected > 0 {
		logger.Info("sms dispatch pass", "selected", t.r.Selected, "sent", t.r.Sent,
			"failed", t.r.Failed, "skipped", t.r.Skipped, "deferred", t.r.Deferred)
	}
	return t.r, nil
}

func (d *Dispatcher) sendSMS(ctx context.Context, rec *domain.DeliveryRecord) outcome {
	log := logger.With("record_id", rec.ID, "campaign_id", rec.CampaignID, "user_id", rec.UserID, "step", rec.StepNumber)

	c, err := d.Campaigns.Get(ctx, rec.CampaignID)
	if errors.Is(err, domain.ErrCampaignNotFound) {
		return d.settleSMS(ctx, rec, domain.SMSFailed, "campaign not found", "")
	}
	if err != nil {
		log.WithError(err).Warn("campaign lookup failed, will retry next pass")
		return outcomeDeferred
	}
	step, ok := c.Step(rec.StepNumber)
	if !ok {
		return d.settleSMS(ctx, rec, domain.SMSFailed, fmt.Sprintf("step %d not found in campaign", rec.StepNumber), "")
	}
	if !step.SendSMS {
		return d.settleSMS(ctx, rec, domain.SMSSkipped, SkipNotEnabled, "")
	}
	if d.SMS == nil {
		return d.settleSMS(ctx, rec, domain.SMSSkipped, SkipNoProvider, "")
	}

	recipient, err := d.Recipients.Recipient(ctx, rec.UserID)
	if errors.Is(err, domain.ErrRecipientNotFound) {
		return d.settleSMS(ctx, rec, domain.SMSFailed, "recipient not found", "")
	}
	if err != nil {
		log.WithError(err).Warn("recipient lookup failed, will retry next pass")
		return outcomeDeferred
	}
	if recipient.Phone == "" {
		return d.settleSMS(ctx, rec, domain.SMSSkipped, SkipNoPhone, "")
	}
	if recipient.SMSOptOut {
		return d.settleSMS(ctx, rec, domain.SMSSkipped, SkipOptedOut, "")
	}
	to, err := d.Phones.E164(recipient.Phone)
	if err != nil {
		return d.settleSMS(ctx, rec, domain.SMSSkipped, SkipBadPhone, "")
	}

	vars := render.Merge(rec.TriggerContext, render.RecipientVars(recipient))
	msg := &domain.SMSMessage{
		RecordID:   rec.ID,
		CampaignID: rec.CampaignID,
		UserID:     rec.UserID,
		To:         to,
		Body:       d.Renderer.Render(step.SMSBody, vars),
	}
	if o, ok := d.claim(ctx, rec, domain.ChannelSMS); !ok {
		return o
	}
	res, err := callWithTimeout(ctx, d.cfg.SendTimeout, func(ctx context.Context) (*domain.SendResult, error) {
		return d.SMS.SendSMS(ctx, msg)
	})
	if err != nil || res == nil || !res.Success {
		return d.settleSMS(ctx, rec, domain.SMSFailed, failureReason(res, err), "")
	}
	return d.settleSMS(ctx, rec, domain.SMSSent, "", res.ProviderID)
}

func (d *Dispatcher) settleSMS(ctx context.Context, rec *domain.DeliveryRecord, status domain.SMSStatus, detail, providerID string) outcome {
	log := logger.With("record_id", rec.ID, "campaign_id", rec.CampaignID, "user_id", rec.UserID, "step", rec.StepNumber)
	moved, err := d.Store.UpdateSMSStatus(ctx, rec.ID, status, detail, providerID, d.Clock.Now().UTC())
	if err != nil {
		log.WithError(err).Error("update sms status")
		return outcomeDeferred
	}
	if !moved {
		return outcomeNone
	}
	switch status {
	case domain.SMSSent:
		log.WithField("provider_id", providerID).Info("sms sent")
		return outcomeSent
	case domain.SMSSkipped:
		log.WithField("reason", detail).Debug("sms skipped")
		return outcomeSkipped
	default:
		log.WithField("reason", detail).Warn("sms delivery failed")
		return outcomeFailed
	}
}
