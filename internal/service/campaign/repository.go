package campaign

import (
	"context"
	"time"

	"github.com/ignite/studio-automation/internal/domain"
)

// Repository defines the data access contract for campaigns and the
// administrative view of their delivery records.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns domain.ErrCampaignNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the filter, ordered by created_at DESC,
	// plus the total number of matches.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign. Returns ErrDuplicateName if the name is taken.
	Create(ctx context.Context, c *domain.Campaign) error

	// Update replaces the campaign definition. Stats are never written here.
	Update(ctx context.Context, c *domain.Campaign) error

	// SetActive flips the active flag.
	SetActive(ctx context.Context, id string, active bool, at time.Time) error

	// Delete removes a campaign and every delivery record referencing it.
	Delete(ctx context.Context, id string) error

	// ListRecords returns a page of a campaign's delivery records ordered by
	// scheduled_for ASC, plus the total number of matches.
	ListRecords(ctx context.Context, campaignID string, filter RecordFilter) ([]domain.DeliveryRecord, int, error)

	// RecordsForCampaign returns every delivery record of a campaign.
	RecordsForCampaign(ctx context.Context, campaignID string) ([]domain.DeliveryRecord, error)

	// CancelRecord moves a scheduled record to cancelled and marks an unsent
	// SMS channel skipped. Returns domain.ErrRecordNotFound or
	// domain.ErrNotCancellable.
	CancelRecord(ctx context.Context, recordID string, at time.Time) (*domain.DeliveryRecord, error)
}

// Archiver stores a copy of a campaign's delivery records before the
// campaign is deleted, returning the location written.
type Archiver interface {
	ArchiveRecords(ctx context.Context, campaignID string, records []domain.DeliveryRecord) (string, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	TriggerKind domain.TriggerKind
	Active      *bool
	Search      string
	Limit       int
	Offset      int
}

// RecordFilter controls pagination and filtering for delivery record lists.
type RecordFilter struct {
	Status domain.DeliveryStatus
	Limit  int
	Offset int
}
