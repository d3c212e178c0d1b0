package stats

import (
	"context"
	"fmt"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/metrics"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// ReconcileStore recomputes and persists campaign counters. ReconcileStats
// must count the records and overwrite the counters atomically with respect
// to concurrent transitions that bump them.
type ReconcileStore interface {
	CampaignIDs(ctx context.Context) ([]string, error)
	ReconcileStats(ctx context.Context, campaignID string) (domain.CampaignStats, error)
}

// Reconciler rewrites running counters from the records they summarize,
// repairing drift left by crashes between a send and its bookkeeping.
type Reconciler struct {
	store   ReconcileStore
	metrics *metrics.Metrics
}

// NewReconciler creates a Reconciler. m may be nil.
func NewReconciler(store ReconcileStore, m *metrics.Metrics) *Reconciler {
	return &Reconciler{store: store, metrics: m}
}

// ReconcileCampaign recomputes one campaign and returns the saved counters.
func (r *Reconciler) ReconcileCampaign(ctx context.Context, campaignID string) (domain.CampaignStats, error) {
	st, err := r.store.ReconcileStats(ctx, campaignID)
	if err != nil {
		return st, fmt.Errorf("reconcile campaign %s: %w", campaignID, err)
	}
	r.metrics.RecordReconciled(1)
	return st, nil
}

// ReconcileAll recomputes every campaign. A failing campaign is logged and
// skipped; the count of reconciled campaigns is returned along with the
// last error seen.
func (r *Reconciler) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := r.store.CampaignIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list campaigns: %w", err)
	}
	var (
		done    int
		lastErr error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := r.ReconcileCampaign(ctx, id); err != nil {
			logger.Error("stats reconcile failed", "campaign_id", id, "error", err)
			lastErr = err
			continue
		}
		done++
	}
	logger.Info("stats reconciled", "campaigns", done, "total", len(ids))
	return done, lastErr
}

// Run adapts ReconcileAll to a scheduled job.
func (r *Reconciler) Run(ctx context.Context) error {
	_, err := r.ReconcileAll(ctx)
	return err
}
