package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// Service implements campaign administration. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo     Repository
	clock    clockwork.Clock
	archiver Archiver
}

// Option configures a Service.
type Option func(*Service)

// WithArchiver archives delivery records before a campaign is deleted.
func WithArchiver(a Archiver) Option { return func(s *Service) { s.archiver = a } }

// WithClock overrides the wall clock.
func WithClock(c clockwork.Clock) Option { return func(s *Service) { s.clock = c } }

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, clock: clockwork.NewRealClock()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Input is the admin-editable definition of a campaign.
type Input struct {
	Name          string               `json:"name" validate:"required"`
	TriggerKind   domain.TriggerKind   `json:"trigger_kind" validate:"required,trigger_kind"`
	TriggerConfig domain.TriggerConfig `json:"trigger_config"`
	Steps         []domain.Step        `json:"steps" validate:"required,min=1,dive"`
	Audience      domain.Audience      `json:"audience"`
	Active        bool                 `json:"active"`
	CreatedBy     string               `json:"created_by,omitempty"`
}

func (in *Input) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return validationError(err)
	}
	in.Steps = domain.RenumberSteps(in.Steps)
	return nil
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, f)
}

// Create validates and persists a new campaign. Steps are renumbered 1..N
// in the order given.
func (s *Service) Create(ctx context.Context, in Input) (*domain.Campaign, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	c := &domain.Campaign{
		ID:            uuid.New().String(),
		Name:          in.Name,
		TriggerKind:   in.TriggerKind,
		TriggerConfig: in.TriggerConfig,
		Steps:         in.Steps,
		Audience:      in.Audience,
		Active:        in.Active,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	logger.Info("campaign created", "campaign_id", c.ID, "trigger", string(c.TriggerKind), "steps", len(c.Steps))
	return c, nil
}

// Update replaces a campaign's definition. Existing delivery records keep
// their step numbers; stats are untouched.
func (s *Service) Update(ctx context.Context, id string, in Input) (*domain.Campaign, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Name = in.Name
	c.TriggerKind = in.TriggerKind
	c.TriggerConfig = in.TriggerConfig
	c.Steps = in.Steps
	c.Audience = in.Audience
	c.Active = in.Active
	c.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Toggle flips a campaign's active flag and returns the updated campaign.
func (s *Service) Toggle(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	if err := s.repo.SetActive(ctx, id, !c.Active, now); err != nil {
		return nil, fmt.Errorf("toggle campaign: %w", err)
	}
	c.Active = !c.Active
	c.UpdatedAt = now
	logger.Info("campaign toggled", "campaign_id", id, "active", c.Active)
	return c, nil
}

// Delete removes a campaign and cascades to its delivery records. When an
// archiver is configured the records are archived first, and a failed
// archive aborts the delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if s.archiver != nil {
		records, err := s.repo.RecordsForCampaign(ctx, id)
		if err != nil {
			return fmt.Errorf("load records for archive: %w", err)
		}
		if len(records) > 0 {
			loc, err := s.archiver.ArchiveRecords(ctx, id, records)
			if err != nil {
				return fmt.Errorf("archive records: %w", err)
			}
			logger.Info("campaign records archived", "campaign_id", id, "records", len(records), "location", loc)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info("campaign deleted", "campaign_id", id)
	return nil
}

// ListRecords returns a page of a campaign's delivery records.
func (s *Service) ListRecords(ctx context.Context, campaignID string, f RecordFilter) ([]domain.DeliveryRecord, int, error) {
	if _, err := s.repo.Get(ctx, campaignID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListRecords(ctx, campaignID, f)
}

// CancelRecord cancels one scheduled delivery record. The dispatch loops
// never select cancelled records; an in-flight send is not interrupted.
func (s *Service) CancelRecord(ctx context.Context, recordID string) (*domain.DeliveryRecord, error) {
	rec, err := s.repo.CancelRecord(ctx, recordID, s.clock.Now().UTC())
	if err != nil {
		if !errors.Is(err, domain.ErrRecordNotFound) && !errors.Is(err, domain.ErrNotCancellable) {
			logger.Error("cancel record failed", "record_id", recordID, "error", err)
		}
		return nil, err
	}
	logger.Info("delivery record cancelled", "record_id", recordID, "campaign_id", rec.CampaignID,
		"user_id", rec.UserID, "step", rec.StepNumber)
	return rec, nil
}
