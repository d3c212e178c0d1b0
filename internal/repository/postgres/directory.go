package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/studio-automation/internal/domain"
)

// DirectoryRepo reads the studio's users, memberships and bookings.
type DirectoryRepo struct{ db *sql.DB }

// NewDirectoryRepo creates a Postgres-backed studio directory.
func NewDirectoryRepo(db *sql.DB) *DirectoryRepo { return &DirectoryRepo{db: db} }

// A recipient's tier is taken from their newest active membership.
const recipientSelect = `
	SELECT u.id, u.name, u.email, u.phone, u.sms_opt_out, u.created_at,
	       COALESCE((SELECT m.tier_name FROM studio_memberships m
	                 WHERE m.user_id = u.id AND m.status = 'active'
	                 ORDER BY m.created_at DESC LIMIT 1), ''),
	       ARRAY(SELECT l.list_id FROM studio_list_members l WHERE l.user_id = u.id ORDER BY l.list_id)
	FROM studio_users u`

func scanRecipient(row scanner) (*domain.Recipient, error) {
	var (
		r     domain.Recipient
		lists []string
	)
	err := row.Scan(&r.ID, &r.Name, &r.Email, &r.Phone, &r.SMSOptOut, &r.CreatedAt,
		&r.MembershipTier, pq.Array(&lists))
	if err != nil {
		return nil, err
	}
	if len(lists) > 0 {
		r.ListIDs = lists
	}
	return &r, nil
}

func (d *DirectoryRepo) Recipient(ctx context.Context, userID string) (*domain.Recipient, error) {
	r, err := scanRecipient(d.db.QueryRowContext(ctx, recipientSelect+` WHERE u.id = $1`, userID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrRecipientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	return r, nil
}

// RegisteredBetween returns users created in [from, to).
func (d *DirectoryRepo) RegisteredBetween(ctx context.Context, from, to time.Time) ([]domain.Recipient, error) {
	rows, err := d.db.QueryContext(ctx,
		recipientSelect+` WHERE u.created_at >= $1 AND u.created_at < $2 ORDER BY u.created_at, u.id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("registered between: %w", err)
	}
	defer rows.Close()
	var out []domain.Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

const bookingSelect = `
	SELECT b.id, b.user_id, u.email, b.event_id, e.title, e.starts_at, e.location,
	       b.status, b.source, b.paid_at, b.created_at
	FROM studio_bookings b
	JOIN studio_users u ON u.id = b.user_id
	JOIN studio_events e ON e.id = b.event_id`

func (d *DirectoryRepo) bookings(ctx context.Context, where string, args ...interface{}) ([]domain.Booking, error) {
	rows, err := d.db.QueryContext(ctx, bookingSelect+` WHERE `+where+` ORDER BY b.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()
	var out []domain.Booking
	for rows.Next() {
		var (
			b      domain.Booking
			paidAt sql.NullTime
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.Email, &b.EventID, &b.EventTitle, &b.EventStart,
			&b.EventLocation, &b.Status, &b.Source, &paidAt, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		b.PaidAt = timePtr(paidAt)
		out = append(out, b)
	}
	return out, rows.Err()
}

// BookingsStartingBetween returns confirmed bookings whose event starts in [from, to].
func (d *DirectoryRepo) BookingsStartingBetween(ctx context.Context, from, to time.Time) ([]domain.Booking, error) {
	return d.bookings(ctx, `b.status = 'confirmed' AND e.starts_at BETWEEN $1 AND $2`, from, to)
}

// PendingBookingsCreatedBetween returns unpaid pending bookings created in [from, to].
func (d *DirectoryRepo) PendingBookingsCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Booking, error) {
	return d.bookings(ctx, `b.status = 'pending' AND b.paid_at IS NULL AND b.created_at BETWEEN $1 AND $2`, from, to)
}

const membershipSelect = `
	SELECT m.id, m.user_id, u.email, m.tier_name, m.credits_remaining,
	       m.expires_at, m.last_class_at, m.status
	FROM studio_memberships m
	JOIN studio_users u ON u.id = m.user_id
	WHERE m.status = 'active'`

func (d *DirectoryRepo) memberships(ctx context.Context, where string, args ...interface{}) ([]domain.Membership, error) {
	rows, err := d.db.QueryContext(ctx, membershipSelect+` AND `+where+` ORDER BY m.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()
	var out []domain.Membership
	for rows.Next() {
		var (
			m                  domain.Membership
			expires, lastClass sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Email, &m.TierName, &m.CreditsRemaining,
			&expires, &lastClass, &m.Status); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.ExpiresAt = timePtr(expires)
		m.LastClassAt = timePtr(lastClass)
		out = append(out, m)
	}
	return out, rows.Err()
}

// InactiveMemberships returns active memberships whose last class was
// before the cutoff. Members who never attended are not included.
func (d *DirectoryRepo) InactiveMemberships(ctx context.Context, lastClassBefore time.Time) ([]domain.Membership, error) {
	return d.memberships(ctx, `m.last_class_at < $1`, lastClassBefore)
}

func (d *DirectoryRepo) MembershipsWithExpiringCredits(ctx context.Context, from, to time.Time) ([]domain.Membership, error) {
	return d.memberships(ctx, `m.credits_remaining > 0 AND m.expires_at BETWEEN $1 AND $2`, from, to)
}

func (d *DirectoryRepo) MembershipsExpiringBetween(ctx context.Context, from, to time.Time) ([]domain.Membership, error) {
	return d.memberships(ctx, `m.expires_at BETWEEN $1 AND $2`, from, to)
}

// ClassPassLeads aggregates non-cancelled ClassPass bookings per user.
func (d *DirectoryRepo) ClassPassLeads(ctx context.Context) ([]domain.ClassPassLead, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT b.user_id, u.email, COUNT(*), MIN(b.created_at)
		FROM studio_bookings b
		JOIN studio_users u ON u.id = b.user_id
		WHERE b.source = $1 AND b.status <> 'cancelled'
		GROUP BY b.user_id, u.email
		ORDER BY b.user_id
	`, domain.BookingSourceClassPass)
	if err != nil {
		return nil, fmt.Errorf("classpass leads: %w", err)
	}
	defer rows.Close()
	var out []domain.ClassPassLead
	for rows.Next() {
		var l domain.ClassPassLead
		if err := rows.Scan(&l.UserID, &l.Email, &l.BookingCount, &l.FirstBookingAt); err != nil {
			return nil, fmt.Errorf("scan classpass lead: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// MarkBookingPaid records payment for a booking and confirms it if it was
// still pending. A repeated call keeps the first payment time.
func (d *DirectoryRepo) MarkBookingPaid(ctx context.Context, bookingID string, at time.Time) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE studio_bookings
		SET paid_at = COALESCE(paid_at, $2),
		    status = CASE WHEN status = 'pending' THEN 'confirmed' ELSE status END
		WHERE id = $1
	`, bookingID, at)
	if err != nil {
		return fmt.Errorf("mark booking paid: %w", err)
	}
	return expectOne(res, domain.ErrBookingNotFound)
}
