package enrollment

import (
	"context"
	"time"

	"github.com/ignite/studio-automation/internal/domain"
)

// Store persists enrollments. Implementations must be safe for concurrent use.
type Store interface {
	// CreateEnrollment atomically checks that the user has no scheduled or
	// sent record for the campaign, inserts every record, and bumps the
	// campaign's totalTriggered and lastTriggeredAt. It returns
	// domain.ErrAlreadyEnrolled when an active enrollment exists, and on any
	// error no records are left behind.
	CreateEnrollment(ctx context.Context, campaignID, userID string, records []domain.DeliveryRecord, at time.Time) error
}
