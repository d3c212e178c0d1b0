package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/service/campaign"
)

const recordColumns = `
	id, campaign_id, enrollment_id, user_id, email, step_number, trigger_context,
	scheduled_for, sent_at, status, error, provider_message_id,
	sms_status, sms_error, sms_provider_id, sms_sent_at,
	COALESCE(tracking_id, ''), opened, opened_at, open_count,
	clicked, clicked_at, click_count, clicks, created_at, updated_at`

const recordOrder = ` ORDER BY scheduled_for, step_number, id`

func scanRecord(row scanner) (*domain.DeliveryRecord, error) {
	var (
		r                   domain.DeliveryRecord
		vars, clicks        []byte
		sentAt, smsSentAt   sql.NullTime
		openedAt, clickedAt sql.NullTime
	)
	err := row.Scan(
		&r.ID, &r.CampaignID, &r.EnrollmentID, &r.UserID, &r.Email, &r.StepNumber, &vars,
		&r.ScheduledFor, &sentAt, &r.Status, &r.Error, &r.ProviderMessageID,
		&r.SMSStatus, &r.SMSError, &r.SMSProviderID, &smsSentAt,
		&r.TrackingID, &r.Opened, &openedAt, &r.OpenCount,
		&r.Clicked, &clickedAt, &r.ClickCount, &clicks, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &r.TriggerContext); err != nil {
			return nil, fmt.Errorf("decode trigger_context: %w", err)
		}
	}
	if len(clicks) > 0 {
		if err := json.Unmarshal(clicks, &r.Clicks); err != nil {
			return nil, fmt.Errorf("decode clicks: %w", err)
		}
	}
	r.SentAt = timePtr(sentAt)
	r.SMSSentAt = timePtr(smsSentAt)
	r.OpenedAt = timePtr(openedAt)
	r.ClickedAt = timePtr(clickedAt)
	return &r, nil
}

func collectRecords(rows *sql.Rows) ([]domain.DeliveryRecord, error) {
	var out []domain.DeliveryRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) ListRecords(ctx context.Context, campaignID string, f campaign.RecordFilter) ([]domain.DeliveryRecord, int, error) {
	where := ` WHERE campaign_id = $1`
	args := []interface{}{campaignID}
	if f.Status != "" {
		where += ` AND status = $2`
		args = append(args, string(f.Status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM automation_deliveries`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	q := `SELECT ` + recordColumns + ` FROM automation_deliveries` + where + recordOrder +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limitArg(f.Limit), f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	out, err := collectRecords(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	return out, total, nil
}

func (r *CampaignRepo) RecordsForCampaign(ctx context.Context, campaignID string) ([]domain.DeliveryRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM automation_deliveries WHERE campaign_id = $1`+recordOrder, campaignID)
	if err != nil {
		return nil, fmt.Errorf("records for campaign: %w", err)
	}
	defer rows.Close()
	out, err := collectRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("records for campaign: %w", err)
	}
	return out, nil
}

func (r *CampaignRepo) CancelRecord(ctx context.Context, recordID string, at time.Time) (*domain.DeliveryRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, `
		UPDATE automation_deliveries
		SET status = 'cancelled',
		    sms_error = CASE WHEN sms_status = 'not_sent' THEN 'cancelled' ELSE sms_error END,
		    sms_status = CASE WHEN sms_status = 'not_sent' THEN 'skipped' ELSE sms_status END,
		    updated_at = $2
		WHERE id = $1 AND status = 'scheduled'
		RETURNING `+recordColumns, recordID, at))
	if err == nil {
		return rec, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("cancel record: %w", err)
	}
	exists, err := recordExists(ctx, r.db, recordID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrRecordNotFound
	}
	return nil, domain.ErrNotCancellable
}

func recordExists(ctx context.Context, db *sql.DB, id string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM automation_deliveries WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check record: %w", err)
	}
	return exists, nil
}

// DeliveryRepo persists delivery records for the enrollment scheduler, the
// dispatch loops and the engagement tracker.
type DeliveryRepo struct{ db *sql.DB }

// NewDeliveryRepo creates a Postgres-backed delivery record repository.
func NewDeliveryRepo(db *sql.DB) *DeliveryRepo { return &DeliveryRepo{db: db} }

// CreateEnrollment inserts every record of one enrollment and bumps the
// campaign's triggered counter in a single transaction. A transaction-scoped
// advisory lock on (campaign, user) serializes concurrent triggers for the
// same pair so the active-enrollment check cannot race.
func (d *DeliveryRepo) CreateEnrollment(ctx context.Context, campaignID, userID string, records []domain.DeliveryRecord, at time.Time) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, campaignID+":"+userID); err != nil {
		return fmt.Errorf("lock enrollment: %w", err)
	}

	var campaignExists, active bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM automation_campaigns WHERE id = $1),
		       EXISTS(SELECT 1 FROM automation_deliveries
		              WHERE campaign_id = $1 AND user_id = $2 AND status IN ('scheduled', 'sent'))
	`, campaignID, userID).Scan(&campaignExists, &active)
	if err != nil {
		return fmt.Errorf("check enrollment: %w", err)
	}
	if !campaignExists {
		return domain.ErrCampaignNotFound
	}
	if active {
		return domain.ErrAlreadyEnrolled
	}

	for i := range records {
		rec := &records[i]
		vars, err := json.Marshal(rec.TriggerContext)
		if err != nil {
			return fmt.Errorf("encode trigger_context: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO automation_deliveries
				(id, campaign_id, enrollment_id, user_id, email, step_number, trigger_context,
				 scheduled_for, status, sms_status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, rec.ID, rec.CampaignID, rec.EnrollmentID, rec.UserID, rec.Email, rec.StepNumber, vars,
			rec.ScheduledFor, string(rec.Status), string(rec.SMSStatus), rec.CreatedAt, rec.UpdatedAt)
		if isUniqueViolation(err) {
			return domain.ErrAlreadyEnrolled
		}
		if err != nil {
			return fmt.Errorf("insert record step %d: %w", rec.StepNumber, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE automation_campaigns
		SET total_triggered = total_triggered + 1, last_triggered_at = $2
		WHERE id = $1
	`, campaignID, at); err != nil {
		return fmt.Errorf("bump triggered: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment: %w", err)
	}
	return nil
}

// DueEmail returns unclaimed scheduled records due at now, oldest first.
func (d *DeliveryRepo) DueEmail(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryRecord, error) {
	return d.due(ctx, `status = 'scheduled' AND (email_claimed_until IS NULL OR email_claimed_until <= $1)`, now, limit)
}

// DueSMS returns unclaimed records whose SMS channel is unsent and due at now.
func (d *DeliveryRepo) DueSMS(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryRecord, error) {
	return d.due(ctx, `sms_status = 'not_sent' AND (sms_claimed_until IS NULL OR sms_claimed_until <= $1)`, now, limit)
}

// ClaimSend claims one channel of a pending record until the given time.
// The update only matches while the channel is pending and any earlier
// claim has lapsed, so concurrent dispatchers cannot both win.
func (d *DeliveryRepo) ClaimSend(ctx context.Context, id string, ch domain.Channel, now, until time.Time) (bool, error) {
	var q string
	switch ch {
	case domain.ChannelEmail:
		q = `
			UPDATE automation_deliveries SET email_claimed_until = $3
			WHERE id = $1 AND status = 'scheduled'
			  AND (email_claimed_until IS NULL OR email_claimed_until <= $2)`
	case domain.ChannelSMS:
		q = `
			UPDATE automation_deliveries SET sms_claimed_until = $3
			WHERE id = $1 AND sms_status = 'not_sent'
			  AND (sms_claimed_until IS NULL OR sms_claimed_until <= $2)`
	default:
		return false, fmt.Errorf("claim record %s: unknown channel %q", id, ch)
	}
	return d.transition(ctx, id, q, id, now, until)
}

func (d *DeliveryRepo) due(ctx context.Context, cond string, now time.Time, limit int) ([]domain.DeliveryRecord, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM automation_deliveries WHERE `+cond+` AND scheduled_for <= $1`+recordOrder+` LIMIT $2`,
		now, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query due records: %w", err)
	}
	defer rows.Close()
	out, err := collectRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("scan due records: %w", err)
	}
	return out, nil
}

// AssignTrackingID sets the record's tracking token unless one exists and
// returns the token in effect.
func (d *DeliveryRepo) AssignTrackingID(ctx context.Context, id, token string) (string, error) {
	var got string
	err := d.db.QueryRowContext(ctx, `
		UPDATE automation_deliveries SET tracking_id = COALESCE(tracking_id, $2)
		WHERE id = $1
		RETURNING tracking_id
	`, id, token).Scan(&got)
	if err == sql.ErrNoRows {
		return "", domain.ErrRecordNotFound
	}
	if err != nil {
		return "", fmt.Errorf("assign tracking id: %w", err)
	}
	return got, nil
}

// MarkSent moves a scheduled record to sent and bumps total_sent in the
// same statement.
func (d *DeliveryRepo) MarkSent(ctx context.Context, id string, at time.Time, providerID string) (bool, error) {
	return d.transition(ctx, id, `
		WITH moved AS (
			UPDATE automation_deliveries
			SET status = 'sent', sent_at = $2, provider_message_id = $3, error = '', updated_at = $2
			WHERE id = $1 AND status = 'scheduled'
			RETURNING campaign_id
		)
		UPDATE automation_campaigns c SET total_sent = c.total_sent + 1
		FROM moved WHERE c.id = moved.campaign_id
	`, id, at, providerID)
}

// MarkFailed moves a scheduled record to failed and bumps total_failed.
func (d *DeliveryRepo) MarkFailed(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	return d.transition(ctx, id, `
		WITH moved AS (
			UPDATE automation_deliveries
			SET status = 'failed', error = $2, updated_at = $3
			WHERE id = $1 AND status = 'scheduled'
			RETURNING campaign_id
		)
		UPDATE automation_campaigns c SET total_failed = c.total_failed + 1
		FROM moved WHERE c.id = moved.campaign_id
	`, id, reason, at)
}

// UpdateSMSStatus settles the SMS channel of a record still in not_sent.
func (d *DeliveryRepo) UpdateSMSStatus(ctx context.Context, id string, status domain.SMSStatus, detail, providerID string, at time.Time) (bool, error) {
	return d.transition(ctx, id, `
		UPDATE automation_deliveries
		SET sms_status = $2::text, sms_error = $3, sms_provider_id = $4,
		    sms_sent_at = CASE WHEN $2::text = 'sent' THEN $5 ELSE sms_sent_at END,
		    updated_at = $5
		WHERE id = $1 AND sms_status = 'not_sent'
	`, id, string(status), detail, providerID, at)
}

// transition runs a conditional update. It reports false when nothing
// moved because the record had already left its pending state, and
// domain.ErrRecordNotFound when the record does not exist.
func (d *DeliveryRepo) transition(ctx context.Context, id, query string, args ...interface{}) (bool, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update record %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	exists, err := recordExists(ctx, d.db, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrRecordNotFound
	}
	return false, nil
}

// UpdateEngagement locks the record with the tracking id, applies fn to it
// and writes the engagement columns back together with any first-open or
// first-click counter bumps. Reports false for unknown tracking ids.
func (d *DeliveryRepo) UpdateEngagement(ctx context.Context, trackingID string, fn func(*domain.DeliveryRecord) domain.EngagementDelta) (bool, error) {
	if trackingID == "" {
		return false, nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin engagement: %w", err)
	}
	defer tx.Rollback()

	rec, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM automation_deliveries WHERE tracking_id = $1 FOR UPDATE`, trackingID))
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load record for engagement: %w", err)
	}

	delta := fn(rec)
	clicks := rec.Clicks
	if clicks == nil {
		clicks = []domain.ClickEvent{}
	}
	clicksJSON, err := json.Marshal(clicks)
	if err != nil {
		return false, fmt.Errorf("encode clicks: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE automation_deliveries
		SET opened = $2, opened_at = $3, open_count = $4,
		    clicked = $5, clicked_at = $6, click_count = $7, clicks = $8, updated_at = NOW()
		WHERE id = $1
	`, rec.ID, rec.Opened, nullTime(rec.OpenedAt), rec.OpenCount,
		rec.Clicked, nullTime(rec.ClickedAt), rec.ClickCount, clicksJSON)
	if err != nil {
		return false, fmt.Errorf("save engagement: %w", err)
	}

	if delta.FirstOpen || delta.FirstClick {
		_, err = tx.ExecContext(ctx, `
			UPDATE automation_campaigns
			SET total_opened = total_opened + $2, total_clicked = total_clicked + $3
			WHERE id = $1
		`, rec.CampaignID, boolInt(delta.FirstOpen), boolInt(delta.FirstClick))
		if err != nil {
			return false, fmt.Errorf("bump engagement counters: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit engagement: %w", err)
	}
	return true, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// TopLinks returns the most clicked URLs of a campaign.
func (d *DeliveryRepo) TopLinks(ctx context.Context, campaignID string, limit int) ([]domain.LinkCount, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT c->>'url' AS url, COUNT(*) AS clicks
		FROM automation_deliveries d, jsonb_array_elements(d.clicks) AS c
		WHERE d.campaign_id = $1
		GROUP BY url
		ORDER BY clicks DESC, url ASC
		LIMIT $2
	`, campaignID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("top links: %w", err)
	}
	defer rows.Close()
	out := []domain.LinkCount{}
	for rows.Next() {
		var lc domain.LinkCount
		if err := rows.Scan(&lc.URL, &lc.Clicks); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

// RecentEngagement returns the latest opens (by first-open time) or clicks
// (every click event) of a campaign, newest first.
func (d *DeliveryRepo) RecentEngagement(ctx context.Context, campaignID string, kind domain.EngagementKind, limit int) ([]domain.EngagementEntry, error) {
	var q string
	switch kind {
	case domain.EngagementOpen:
		q = `
			SELECT id, user_id, email, step_number, '', opened_at
			FROM automation_deliveries
			WHERE campaign_id = $1 AND opened_at IS NOT NULL
			ORDER BY opened_at DESC, id
			LIMIT $2`
	case domain.EngagementClick:
		q = `
			SELECT d.id, d.user_id, d.email, d.step_number, c->>'url', (c->>'clicked_at')::timestamptz AS at
			FROM automation_deliveries d, jsonb_array_elements(d.clicks) AS c
			WHERE d.campaign_id = $1
			ORDER BY at DESC, d.id
			LIMIT $2`
	default:
		return nil, fmt.Errorf("unknown engagement kind %q", kind)
	}
	rows, err := d.db.QueryContext(ctx, q, campaignID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("recent %s: %w", kind, err)
	}
	defer rows.Close()
	out := []domain.EngagementEntry{}
	for rows.Next() {
		var e domain.EngagementEntry
		if err := rows.Scan(&e.RecordID, &e.UserID, &e.Email, &e.StepNumber, &e.URL, &e.At); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
