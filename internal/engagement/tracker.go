// Package engagement records opens and clicks against delivery records.
//
// Each record counts every event, but the owning campaign's totalOpened
// and totalClicked move only on a record's first open and first click.
// Unknown tracking ids are ignored.
package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/metrics"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// Store applies an engagement mutation to the record with the given
// tracking id under a row lock, bumping campaign totals per the returned
// delta in the same transaction. It reports false for unknown ids.
type Store interface {
	UpdateEngagement(ctx context.Context, trackingID string, fn func(*domain.DeliveryRecord) domain.EngagementDelta) (bool, error)
}

// Tracker records engagement events.
type Tracker struct {
	store   Store
	clock   clockwork.Clock
	metrics *metrics.Metrics
}

// NewTracker creates a Tracker. m may be nil.
func NewTracker(store Store, clock clockwork.Clock, m *metrics.Metrics) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{store: store, clock: clock, metrics: m}
}

// RecordOpen records an open at the current time.
func (t *Tracker) RecordOpen(ctx context.Context, trackingID string) error {
	return t.RecordOpenAt(ctx, trackingID, t.clock.Now().UTC())
}

// RecordOpenAt records an open observed at the given time.
func (t *Tracker) RecordOpenAt(ctx context.Context, trackingID string, at time.Time) error {
	found, err := t.store.UpdateEngagement(ctx, trackingID, func(r *domain.DeliveryRecord) domain.EngagementDelta {
		return domain.EngagementDelta{FirstOpen: r.ApplyOpen(at)}
	})
	if err != nil {
		return fmt.Errorf("record open: %w", err)
	}
	t.metrics.RecordEngagement(string(domain.EngagementOpen), found)
	if !found {
		logger.Debug("open for unknown tracking id", "tracking_id", trackingID)
	}
	return nil
}

// RecordClick records a click on url at the current time.
func (t *Tracker) RecordClick(ctx context.Context, trackingID, url string) error {
	return t.RecordClickAt(ctx, trackingID, url, t.clock.Now().UTC())
}

// RecordClickAt records a click observed at the given time.
func (t *Tracker) RecordClickAt(ctx context.Context, trackingID, url string, at time.Time) error {
	found, err := t.store.UpdateEngagement(ctx, trackingID, func(r *domain.DeliveryRecord) domain.EngagementDelta {
		return domain.EngagementDelta{FirstClick: r.ApplyClick(url, at)}
	})
	if err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	t.metrics.RecordEngagement(string(domain.EngagementClick), found)
	if !found {
		logger.Debug("click for unknown tracking id", "tracking_id", trackingID)
	}
	return nil
}
