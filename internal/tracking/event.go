// Package tracking serves the open-pixel and click-redirect endpoints
// embedded in campaign emails and rewrites outgoing HTML to point at them.
//
// Events are either recorded directly (the admin server) or published to
// SQS by the edge tracking service and consumed by the worker.
package tracking

import (
	"context"
	"time"

	"github.com/ignite/studio-automation/internal/domain"
)

// Event is one open or click as carried on the tracking queue.
type Event struct {
	Kind       domain.EngagementKind `json:"kind"`
	TrackingID string                `json:"tracking_id"`
	URL        string                `json:"url,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
}

// Recorder accepts engagement from the HTTP handler.
type Recorder interface {
	RecordOpen(ctx context.Context, trackingID string) error
	RecordClick(ctx context.Context, trackingID, url string) error
}

// EventRecorder applies queued events at their original time.
type EventRecorder interface {
	RecordOpenAt(ctx context.Context, trackingID string, at time.Time) error
	RecordClickAt(ctx context.Context, trackingID, url string, at time.Time) error
}
