package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/service/campaign"
)

// PutCampaign stores c as-is, stats included.
func (s *Store) PutCampaign(c domain.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copyCampaign(&c)
	s.campaigns[c.ID] = &cp
}

func (s *Store) Get(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, domain.ErrCampaignNotFound
	}
	cp := copyCampaign(c)
	return &cp, nil
}

func (s *Store) List(_ context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Campaign
	for _, c := range s.campaigns {
		if f.TriggerKind != "" && c.TriggerKind != f.TriggerKind {
			continue
		}
		if f.Active != nil && c.Active != *f.Active {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, copyCampaign(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Offset, f.Limit)
}

func page[T any](items []T, offset, limit int) ([]T, int, error) {
	total := len(items)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total || limit <= 0 {
		end = total
	}
	return items[offset:end], total, nil
}

func (s *Store) Create(_ context.Context, c *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	for _, existing := range s.campaigns {
		if strings.EqualFold(existing.Name, c.Name) {
			return campaign.ErrDuplicateName
		}
	}
	cp := copyCampaign(c)
	s.campaigns[c.ID] = &cp
	return nil
}

func (s *Store) Update(_ context.Context, c *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.campaigns[c.ID]
	if !ok {
		return domain.ErrCampaignNotFound
	}
	for id, other := range s.campaigns {
		if id != c.ID && strings.EqualFold(other.Name, c.Name) {
			return campaign.ErrDuplicateName
		}
	}
	cp := copyCampaign(c)
	cp.Stats = existing.Stats
	cp.CreatedAt = existing.CreatedAt
	s.campaigns[c.ID] = &cp
	return nil
}

func (s *Store) SetActive(_ context.Context, id string, active bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return domain.ErrCampaignNotFound
	}
	c.Active = active
	c.UpdatedAt = at
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[id]; !ok {
		return domain.ErrCampaignNotFound
	}
	delete(s.campaigns, id)
	for rid, r := range s.records {
		if r.CampaignID == id {
			delete(s.records, rid)
		}
	}
	return nil
}

// ListActiveByTrigger returns active campaigns of the given kind.
func (s *Store) ListActiveByTrigger(_ context.Context, kind domain.TriggerKind) ([]domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Campaign
	for _, c := range s.campaigns {
		if c.Active && c.TriggerKind == kind {
			out = append(out, copyCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CampaignIDs returns every campaign id.
func (s *Store) CampaignIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.campaigns))
	for id := range s.campaigns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveStats overwrites a campaign's counters.
func (s *Store) SaveStats(_ context.Context, campaignID string, st domain.CampaignStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return domain.ErrCampaignNotFound
	}
	c.Stats = st
	return nil
}
