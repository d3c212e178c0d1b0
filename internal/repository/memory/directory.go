package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ignite/studio-automation/internal/domain"
)

// AddRecipient seeds a studio user.
func (s *Store) AddRecipient(r domain.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := r
	cp.ListIDs = append([]string(nil), r.ListIDs...)
	s.recipients[r.ID] = &cp
}

// RemoveRecipient deletes a studio user.
func (s *Store) RemoveRecipient(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recipients, id)
}

// AddMembership seeds a membership.
func (s *Store) AddMembership(m domain.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := m
	s.memberships[m.ID] = &cp
}

// AddBooking seeds a booking.
func (s *Store) AddBooking(b domain.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := b
	s.bookings[b.ID] = &cp
}

// Booking returns a copy of one booking.
func (s *Store) Booking(id string) (domain.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return domain.Booking{}, false
	}
	return *b, true
}

func (s *Store) Recipient(_ context.Context, userID string) (*domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipients[userID]
	if !ok {
		return nil, domain.ErrRecipientNotFound
	}
	cp := *r
	cp.ListIDs = append([]string(nil), r.ListIDs...)
	return &cp, nil
}

func (s *Store) RegisteredBetween(_ context.Context, from, to time.Time) ([]domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Recipient
	for _, r := range s.recipients {
		if !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func (s *Store) bookingsWhere(match func(*domain.Booking) bool) []domain.Booking {
	var out []domain.Booking
	for _, b := range s.bookings {
		if match(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) membershipsWhere(match func(*domain.Membership) bool) []domain.Membership {
	var out []domain.Membership
	for _, m := range s.memberships {
		if m.Status == domain.MembershipActive && match(m) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BookingsStartingBetween returns confirmed bookings whose event starts in [from, to].
func (s *Store) BookingsStartingBetween(_ context.Context, from, to time.Time) ([]domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookingsWhere(func(b *domain.Booking) bool {
		return b.Status == domain.BookingConfirmed && within(b.EventStart, from, to)
	}), nil
}

// PendingBookingsCreatedBetween returns unpaid pending bookings created in [from, to].
func (s *Store) PendingBookingsCreatedBetween(_ context.Context, from, to time.Time) ([]domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookingsWhere(func(b *domain.Booking) bool {
		return b.Status == domain.BookingPending && b.PaidAt == nil && within(b.CreatedAt, from, to)
	}), nil
}

func (s *Store) InactiveMemberships(_ context.Context, lastClassBefore time.Time) ([]domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.membershipsWhere(func(m *domain.Membership) bool {
		return m.LastClassAt != nil && m.LastClassAt.Before(lastClassBefore)
	}), nil
}

func (s *Store) MembershipsWithExpiringCredits(_ context.Context, from, to time.Time) ([]domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.membershipsWhere(func(m *domain.Membership) bool {
		return m.CreditsRemaining > 0 && m.ExpiresAt != nil && within(*m.ExpiresAt, from, to)
	}), nil
}

func (s *Store) MembershipsExpiringBetween(_ context.Context, from, to time.Time) ([]domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.membershipsWhere(func(m *domain.Membership) bool {
		return m.ExpiresAt != nil && within(*m.ExpiresAt, from, to)
	}), nil
}

// ClassPassLeads aggregates non-cancelled ClassPass bookings per user.
func (s *Store) ClassPassLeads(_ context.Context) ([]domain.ClassPassLead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	leads := make(map[string]*domain.ClassPassLead)
	for _, b := range s.bookings {
		if b.Source != domain.BookingSourceClassPass || b.Status == domain.BookingCancelled {
			continue
		}
		l, ok := leads[b.UserID]
		if !ok {
			l = &domain.ClassPassLead{UserID: b.UserID, Email: b.Email, FirstBookingAt: b.CreatedAt}
			leads[b.UserID] = l
		}
		l.BookingCount++
		if b.CreatedAt.Before(l.FirstBookingAt) {
			l.FirstBookingAt = b.CreatedAt
		}
	}
	out := make([]domain.ClassPassLead, 0, len(leads))
	for _, l := range leads {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// MarkBookingPaid records payment for a booking and confirms it.
func (s *Store) MarkBookingPaid(_ context.Context, bookingID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return domain.ErrBookingNotFound
	}
	if b.PaidAt == nil {
		t := at
		b.PaidAt = &t
	}
	if b.Status == domain.BookingPending {
		b.Status = domain.BookingConfirmed
	}
	return nil
}
