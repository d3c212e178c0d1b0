package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/service/campaign"
)

// PutRecord stores a delivery record as-is.
func (s *Store) PutRecord(r domain.DeliveryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copyRecord(&r)
	s.records[r.ID] = &cp
}

// Record returns a copy of one delivery record.
func (s *Store) Record(id string) (domain.DeliveryRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return domain.DeliveryRecord{}, false
	}
	return copyRecord(r), true
}

func (s *Store) RecordsForCampaign(_ context.Context, campaignID string) ([]domain.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordsWhere(func(r *domain.DeliveryRecord) bool { return r.CampaignID == campaignID }), nil
}

// recordsWhere returns matching records ordered by scheduled time then step.
// Callers hold the lock.
func (s *Store) recordsWhere(match func(*domain.DeliveryRecord) bool) []domain.DeliveryRecord {
	var out []domain.DeliveryRecord
	for _, r := range s.records {
		if match(r) {
			out = append(out, copyRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ScheduledFor.Before(out[j].ScheduledFor)
		}
		if out[i].StepNumber != out[j].StepNumber {
			return out[i].StepNumber < out[j].StepNumber
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) ListRecords(_ context.Context, campaignID string, f campaign.RecordFilter) ([]domain.DeliveryRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.recordsWhere(func(r *domain.DeliveryRecord) bool {
		return r.CampaignID == campaignID && (f.Status == "" || r.Status == f.Status)
	})
	return page(out, f.Offset, f.Limit)
}

func (s *Store) CancelRecord(_ context.Context, recordID string, at time.Time) (*domain.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	if r.Status != domain.DeliveryScheduled {
		return nil, domain.ErrNotCancellable
	}
	r.Status = domain.DeliveryCancelled
	if r.SMSStatus == domain.SMSNotSent {
		r.SMSStatus = domain.SMSSkipped
		r.SMSError = "cancelled"
	}
	r.UpdatedAt = at
	cp := copyRecord(r)
	return &cp, nil
}

// CreateEnrollment inserts all records of one enrollment and bumps the
// campaign's triggered counter, or does nothing at all.
func (s *Store) CreateEnrollment(_ context.Context, campaignID, userID string, records []domain.DeliveryRecord, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	c, ok := s.campaigns[campaignID]
	if !ok {
		return domain.ErrCampaignNotFound
	}
	for _, r := range s.records {
		if r.CampaignID == campaignID && r.UserID == userID && r.Status.IsActive() {
			return domain.ErrAlreadyEnrolled
		}
	}
	for i := range records {
		cp := copyRecord(&records[i])
		s.records[cp.ID] = &cp
	}
	c.Stats.TotalTriggered++
	t := at
	c.Stats.LastTriggeredAt = &t
	return nil
}

// DueEmail returns scheduled records due at now, oldest first.
func (s *Store) DueEmail(_ context.Context, now time.Time, limit int) ([]domain.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.recordsWhere(func(r *domain.DeliveryRecord) bool {
		return r.Status == domain.DeliveryScheduled && r.IsDue(now) && !s.claimed(r.ID, domain.ChannelEmail, now)
	})
	return truncate(out, limit), nil
}

// DueSMS returns records whose SMS channel is unsent and due at now.
func (s *Store) DueSMS(_ context.Context, now time.Time, limit int) ([]domain.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.recordsWhere(func(r *domain.DeliveryRecord) bool {
		return r.SMSStatus == domain.SMSNotSent && r.IsDue(now) && !s.claimed(r.ID, domain.ChannelSMS, now)
	})
	return truncate(out, limit), nil
}

// ClaimSend claims one channel of a pending record until the given time.
func (s *Store) ClaimSend(_ context.Context, id string, ch domain.Channel, now, until time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return false, domain.ErrRecordNotFound
	}
	pending := r.Status == domain.DeliveryScheduled
	if ch == domain.ChannelSMS {
		pending = r.SMSStatus == domain.SMSNotSent
	}
	if !pending || s.claimed(id, ch, now) {
		return false, nil
	}
	s.claims[claimKey(id, ch)] = until
	return true, nil
}

// claimed reports whether a live claim exists. Callers hold the lock.
func (s *Store) claimed(id string, ch domain.Channel, now time.Time) bool {
	until, ok := s.claims[claimKey(id, ch)]
	return ok && until.After(now)
}

func claimKey(id string, ch domain.Channel) string { return string(ch) + ":" + id }

func truncate(in []domain.DeliveryRecord, limit int) []domain.DeliveryRecord {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

// AssignTrackingID sets the record's tracking token unless one exists and
// returns the token in effect.
func (s *Store) AssignTrackingID(_ context.Context, id, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return "", domain.ErrRecordNotFound
	}
	if r.TrackingID == "" {
		r.TrackingID = token
	}
	return r.TrackingID, nil
}

// MarkSent moves a scheduled record to sent and bumps totalSent. It reports
// false when the record had already left the scheduled state.
func (s *Store) MarkSent(_ context.Context, id string, at time.Time, providerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return false, domain.ErrRecordNotFound
	}
	if r.Status != domain.DeliveryScheduled {
		return false, nil
	}
	r.Status = domain.DeliverySent
	t := at
	r.SentAt = &t
	r.ProviderMessageID = providerID
	r.Error = ""
	r.UpdatedAt = at
	if c, ok := s.campaigns[r.CampaignID]; ok {
		c.Stats.TotalSent++
	}
	return true, nil
}

// MarkFailed moves a scheduled record to failed and bumps totalFailed.
func (s *Store) MarkFailed(_ context.Context, id, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return false, domain.ErrRecordNotFound
	}
	if r.Status != domain.DeliveryScheduled {
		return false, nil
	}
	r.Status = domain.DeliveryFailed
	r.Error = reason
	r.UpdatedAt = at
	if c, ok := s.campaigns[r.CampaignID]; ok {
		c.Stats.TotalFailed++
	}
	return true, nil
}

// UpdateSMSStatus settles the SMS channel of a record still in not_sent.
func (s *Store) UpdateSMSStatus(_ context.Context, id string, status domain.SMSStatus, detail, providerID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return false, domain.ErrRecordNotFound
	}
	if r.SMSStatus != domain.SMSNotSent {
		return false, nil
	}
	r.SMSStatus = status
	r.SMSError = detail
	r.SMSProviderID = providerID
	if status == domain.SMSSent {
		t := at
		r.SMSSentAt = &t
	}
	r.UpdatedAt = at
	return true, nil
}

// UpdateEngagement applies fn to the record with the tracking id and bumps
// the campaign totals for first opens and clicks. Reports false for
// unknown tracking ids.
func (s *Store) UpdateEngagement(_ context.Context, trackingID string, fn func(*domain.DeliveryRecord) domain.EngagementDelta) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if trackingID == "" {
		return false, nil
	}
	for _, r := range s.records {
		if r.TrackingID != trackingID {
			continue
		}
		delta := fn(r)
		if c, ok := s.campaigns[r.CampaignID]; ok {
			if delta.FirstOpen {
				c.Stats.TotalOpened++
			}
			if delta.FirstClick {
				c.Stats.TotalClicked++
			}
		}
		return true, nil
	}
	return false, nil
}

// TallyRecords recomputes a campaign's counters from its records without
// saving them.
func (s *Store) TallyRecords(_ context.Context, campaignID string) (domain.CampaignStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tally(campaignID), nil
}

// ReconcileStats recomputes a campaign's counters and saves them under the
// same lock every transition takes.
func (s *Store) ReconcileStats(_ context.Context, campaignID string) (domain.CampaignStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return domain.CampaignStats{}, domain.ErrCampaignNotFound
	}
	c.Stats = s.tally(campaignID)
	return copyCampaign(c).Stats, nil
}

// tally counts a campaign's records. Callers hold the lock.
func (s *Store) tally(campaignID string) domain.CampaignStats {
	var st domain.CampaignStats
	enrollments := make(map[string]struct{})
	for _, r := range s.records {
		if r.CampaignID != campaignID {
			continue
		}
		enrollments[r.EnrollmentID] = struct{}{}
		switch r.Status {
		case domain.DeliverySent:
			st.TotalSent++
		case domain.DeliveryFailed:
			st.TotalFailed++
		}
		if r.Opened {
			st.TotalOpened++
		}
		if r.Clicked {
			st.TotalClicked++
		}
		if st.LastTriggeredAt == nil || r.CreatedAt.After(*st.LastTriggeredAt) {
			t := r.CreatedAt
			st.LastTriggeredAt = &t
		}
	}
	st.TotalTriggered = int64(len(enrollments))
	return st
}

// TopLinks returns the most clicked URLs of a campaign.
func (s *Store) TopLinks(_ context.Context, campaignID string, limit int) ([]domain.LinkCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int64)
	for _, r := range s.records {
		if r.CampaignID != campaignID {
			continue
		}
		for _, c := range r.Clicks {
			counts[c.URL]++
		}
	}
	out := make([]domain.LinkCount, 0, len(counts))
	for u, n := range counts {
		out = append(out, domain.LinkCount{URL: u, Clicks: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Clicks != out[j].Clicks {
			return out[i].Clicks > out[j].Clicks
		}
		return out[i].URL < out[j].URL
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecentEngagement returns the latest opens (by first-open time) or clicks
// (every click event) of a campaign, newest first.
func (s *Store) RecentEngagement(_ context.Context, campaignID string, kind domain.EngagementKind, limit int) ([]domain.EngagementEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EngagementEntry
	for _, r := range s.records {
		if r.CampaignID != campaignID {
			continue
		}
		base := domain.EngagementEntry{RecordID: r.ID, UserID: r.UserID, Email: r.Email, StepNumber: r.StepNumber}
		switch kind {
		case domain.EngagementOpen:
			if r.OpenedAt != nil {
				e := base
				e.At = *r.OpenedAt
				out = append(out, e)
			}
		case domain.EngagementClick:
			for _, c := range r.Clicks {
				e := base
				e.URL = c.URL
				e.At = c.ClickedAt
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
