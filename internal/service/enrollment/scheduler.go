package enrollment

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// Scheduler enrolls recipients into campaign sequences.
type Scheduler struct {
	store Store
	clock clockwork.Clock
}

// NewScheduler creates a Scheduler. A nil clock uses the wall clock.
func NewScheduler(store Store, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{store: store, clock: clock}
}

// ScheduleForUser creates one scheduled delivery record per step of c for
// the user and returns them. If the user already has a scheduled or sent
// record for the campaign it returns (nil, nil): re-triggering is a no-op,
// not an error.
func (s *Scheduler) ScheduleForUser(ctx context.Context, c *domain.Campaign, userID, email string, vars map[string]string) ([]domain.DeliveryRecord, error) {
	if userID == "" || email == "" {
		return nil, ErrMissingUser
	}
	if len(c.Steps) == 0 {
		return nil, fmt.Errorf("campaign %s: %w", c.ID, ErrEmptySequence)
	}

	now := s.clock.Now().UTC()
	enrollmentID := uuid.New().String()
	records := make([]domain.DeliveryRecord, 0, len(c.Steps))
	for _, step := range c.Steps {
		records = append(records, domain.DeliveryRecord{
			ID:             uuid.New().String(),
			CampaignID:     c.ID,
			EnrollmentID:   enrollmentID,
			UserID:         userID,
			Email:          email,
			StepNumber:     step.StepNumber,
			TriggerContext: maps.Clone(vars),
			ScheduledFor:   now.Add(step.Delay()),
			Status:         domain.DeliveryScheduled,
			SMSStatus:      domain.SMSNotSent,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	if err := s.store.CreateEnrollment(ctx, c.ID, userID, records, now); err != nil {
		if errors.Is(err, domain.ErrAlreadyEnrolled) {
			logger.Debug("enrollment skipped: already active", "campaign_id", c.ID, "user_id", userID)
			return nil, nil
		}
		return nil, fmt.Errorf("enroll user %s in campaign %s: %w", userID, c.ID, err)
	}
	logger.Info("user enrolled", "campaign_id", c.ID, "user_id", userID, "email", email, "steps", len(records))
	return records, nil
}
