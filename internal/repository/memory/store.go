// Package memory is an in-process test double for every store interface
// the automation engine consumes. The binaries always use
// repository/postgres.
package memory

import (
	"sync"
	"time"

	"github.com/ignite/studio-automation/internal/domain"
)

// Store holds campaigns, delivery records and the studio directory behind
// one mutex, so every multi-entity operation is atomic.
type Store struct {
	mu          sync.Mutex
	campaigns   map[string]*domain.Campaign
	records     map[string]*domain.DeliveryRecord
	recipients  map[string]*domain.Recipient
	memberships map[string]*domain.Membership
	bookings    map[string]*domain.Booking
	claims      map[string]time.Time // channel:record id -> claimed until

	// FailNext makes the next mutating call return this error. Tests use it
	// to exercise all-or-nothing paths.
	FailNext error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		campaigns:   make(map[string]*domain.Campaign),
		records:     make(map[string]*domain.DeliveryRecord),
		recipients:  make(map[string]*domain.Recipient),
		memberships: make(map[string]*domain.Membership),
		bookings:    make(map[string]*domain.Booking),
		claims:      make(map[string]time.Time),
	}
}

func (s *Store) takeFailure() error {
	err := s.FailNext
	s.FailNext = nil
	return err
}

func copyCampaign(c *domain.Campaign) domain.Campaign {
	cp := *c
	cp.Steps = append([]domain.Step(nil), c.Steps...)
	cp.Audience.MembershipTiers = append([]string(nil), c.Audience.MembershipTiers...)
	cp.Audience.ListIDs = append([]string(nil), c.Audience.ListIDs...)
	cp.TriggerConfig.Milestones = append([]domain.Milestone(nil), c.TriggerConfig.Milestones...)
	if c.Stats.LastTriggeredAt != nil {
		t := *c.Stats.LastTriggeredAt
		cp.Stats.LastTriggeredAt = &t
	}
	return cp
}

func copyRecord(r *domain.DeliveryRecord) domain.DeliveryRecord {
	cp := *r
	if r.TriggerContext != nil {
		cp.TriggerContext = make(map[string]string, len(r.TriggerContext))
		for k, v := range r.TriggerContext {
			cp.TriggerContext[k] = v
		}
	}
	cp.Clicks = append([]domain.ClickEvent(nil), r.Clicks...)
	return cp
}
