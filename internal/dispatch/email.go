package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/logger"
	"github.com/ignite/studio-automation/internal/render"
)

// RunEmail sends every email due now. One record's failure never stops the
// others; the returned error covers only the initial selection.
func (d *Dispatcher) RunEmail(ctx context.Context) (Result, error) {
	start := time.Now()
	now := d.Clock.Now().UTC()
	due, err := d.Store.DueEmail(ctx, now, d.cfg.BatchSize)
	if err != nil {
		return Result{}, fmt.Errorf("select due emails: %w", err)
	}

	t := &tally{r: Result{Selected: len(due)}}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for i := range due {
		rec := due[i]
		g.Go(func() error {
			o := d.sendEmail(gctx, &rec)
			t.add(o)
			d.Metrics.RecordDelivery(string(domain.ChannelEmail), o.String())
			return nil
		})
	}
	_ = g.Wait()
	d.Metrics.ObserveDispatch(string(domain.ChannelEmail), time.Since(start))

	if t.r.Selected > 0 {
		logger.Info("email dispatch pass", "selected", t.r.Selected, "sent", t.r.Sent,
			"failed", t.r.Failed, "deferred", t.r.Deferred)
	}
	return t.r, nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, rec *domain.DeliveryRecord) outcome {
	log := logger.With("record_id", rec.ID, "campaign_id", rec.CampaignID, "user_id", rec.UserID, "step", rec.StepNumber)

	c, err := d.Campaigns.Get(ctx, rec.CampaignID)
	if errors.Is(err, domain.ErrCampaignNotFound) {
		return d.failEmail(ctx, rec, "campaign not found")
	}
	if err != nil {
		log.WithError(err).Warn("campaign lookup failed, will retry next pass")
		return outcomeDeferred
	}
	recipient, err := d.Recipients.Recipient(ctx, rec.UserID)
	if errors.Is(err, domain.ErrRecipientNotFound) {
		return d.failEmail(ctx, rec, "recipient not found")
	}
	if err != nil {
		log.WithError(err).Warn("recipient lookup failed, will retry next pass")
		return outcomeDeferred
	}
	step, ok := c.Step(rec.StepNumber)
	if !ok {
		return d.failEmail(ctx, rec, fmt.Sprintf("step %d not found in campaign", rec.StepNumber))
	}

	trackingID, err := d.Store.AssignTrackingID(ctx, rec.ID, uuid.New().String())
	if err != nil {
		log.WithError(err).Warn("assign tracking id failed, will retry next pass")
		return outcomeDeferred
	}

	vars := render.Merge(rec.TriggerContext, render.RecipientVars(recipient))
	html := d.Renderer.Render(step.Body, vars)
	if d.Injector != nil {
		html = d.Injector.InjectTracking(html, trackingID)
	}
	msg := &domain.EmailMessage{
		RecordID:   rec.ID,
		CampaignID: rec.CampaignID,
		UserID:     rec.UserID,
		To:         rec.Email,
		FromName:   d.cfg.FromName,
		FromEmail:  d.cfg.FromEmail,
		Subject:    d.Renderer.Render(step.Subject, vars),
		HTML:       html,
		Headers:    map[string]string{"X-Campaign-ID": rec.CampaignID, "X-Record-ID": rec.ID},
	}

	if o, ok := d.claim(ctx, rec, domain.ChannelEmail); !ok {
		return o
	}
	res, err := callWithTimeout(ctx, d.cfg.SendTimeout, func(ctx context.Context) (*domain.SendResult, error) {
		return d.Email.SendEmail(ctx, msg)
	})
	if err != nil || res == nil || !res.Success {
		return d.failEmail(ctx, rec, failureReason(res, err))
	}

	sentAt := res.SentAt
	if sentAt.IsZero() {
		sentAt = d.Clock.Now().UTC()
	}
	moved, err := d.Store.MarkSent(ctx, rec.ID, sentAt, res.ProviderID)
	if err != nil {
		// the message went out; the record stays scheduled and is picked up
		// again once its claim lapses
		log.WithError(err).Error("email sent but record update failed")
		return outcomeDeferred
	}
	if !moved {
		log.Warn("email sent but record was no longer scheduled")
		return outcomeNone
	}
	log.WithField("provider_id", res.ProviderID).Info("email sent")
	return outcomeSent
}

func (d *Dispatcher) failEmail(ctx context.Context, rec *domain.DeliveryRecord, reason string) outcome {
	log := logger.With("record_id", rec.ID, "campaign_id", rec.CampaignID, "user_id", rec.UserID, "step", rec.StepNumber)
	moved, err := d.Store.MarkFailed(ctx, rec.ID, reason, d.Clock.Now().UTC())
	if err != nil {
		log.WithError(err).Error("mark email failed")
		return outcomeDeferred
	}
	if !moved {
		return outcomeNone
	}
	log.WithField("reason", reason).Warn("email delivery failed")
	return outcomeFailed
}
