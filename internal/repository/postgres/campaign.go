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

// CampaignRepo implements campaign.Repository against PostgreSQL. It also
// serves the trigger engine's campaign source and the stats reconciler.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `
	id, name, trigger_kind, trigger_config, steps, audience, active,
	total_triggered, total_sent, total_failed, total_opened, total_clicked,
	last_triggered_at, created_by, created_at, updated_at`

func scanCampaign(row scanner) (*domain.Campaign, error) {
	var (
		c                    domain.Campaign
		cfg, steps, audience []byte
		lastTriggered        sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.TriggerKind, &cfg, &steps, &audience, &c.Active,
		&c.Stats.TotalTriggered, &c.Stats.TotalSent, &c.Stats.TotalFailed,
		&c.Stats.TotalOpened, &c.Stats.TotalClicked,
		&lastTriggered, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cfg, &c.TriggerConfig); err != nil {
		return nil, fmt.Errorf("decode trigger_config: %w", err)
	}
	if err := json.Unmarshal(steps, &c.Steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	if err := json.Unmarshal(audience, &c.Audience); err != nil {
		return nil, fmt.Errorf("decode audience: %w", err)
	}
	c.Stats.LastTriggeredAt = timePtr(lastTriggered)
	return &c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM automation_campaigns WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.TriggerKind != "" {
		where += fmt.Sprintf(" AND trigger_kind = $%d", idx)
		args = append(args, string(f.TriggerKind))
		idx++
	}
	if f.Active != nil {
		where += fmt.Sprintf(" AND active = $%d", idx)
		args = append(args, *f.Active)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND name ILIKE $%d", idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM automation_campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM automation_campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limitArg(f.Limit), f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	out, err := collectCampaigns(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	return out, total, nil
}

func collectCampaigns(rows *sql.Rows) ([]domain.Campaign, error) {
	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func encodeDefinition(c *domain.Campaign) (cfg, steps, audience []byte, err error) {
	if cfg, err = json.Marshal(c.TriggerConfig); err != nil {
		return nil, nil, nil, fmt.Errorf("encode trigger_config: %w", err)
	}
	list := c.Steps
	if list == nil {
		list = []domain.Step{}
	}
	if steps, err = json.Marshal(list); err != nil {
		return nil, nil, nil, fmt.Errorf("encode steps: %w", err)
	}
	if audience, err = json.Marshal(c.Audience); err != nil {
		return nil, nil, nil, fmt.Errorf("encode audience: %w", err)
	}
	return cfg, steps, audience, nil
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	cfg, steps, audience, err := encodeDefinition(c)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO automation_campaigns
			(id, name, trigger_kind, trigger_config, steps, audience, active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.Name, string(c.TriggerKind), cfg, steps, audience, c.Active, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return campaign.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// Update rewrites the definition columns only; counters and created_at are
// left as stored.
func (r *CampaignRepo) Update(ctx context.Context, c *domain.Campaign) error {
	cfg, steps, audience, err := encodeDefinition(c)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE automation_campaigns
		SET name = $2, trigger_kind = $3, trigger_config = $4, steps = $5,
		    audience = $6, active = $7, updated_at = $8
		WHERE id = $1
	`, c.ID, c.Name, string(c.TriggerKind), cfg, steps, audience, c.Active, c.UpdatedAt)
	if isUniqueViolation(err) {
		return campaign.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	return expectOne(res, domain.ErrCampaignNotFound)
}

func (r *CampaignRepo) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE automation_campaigns SET active = $2, updated_at = $3 WHERE id = $1`, id, active, at)
	if err != nil {
		return fmt.Errorf("set campaign active: %w", err)
	}
	return expectOne(res, domain.ErrCampaignNotFound)
}

// Delete removes the campaign; its delivery records go with it through the
// foreign key cascade.
func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM automation_campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	return expectOne(res, domain.ErrCampaignNotFound)
}

// ListActiveByTrigger returns active campaigns of the given kind.
func (r *CampaignRepo) ListActiveByTrigger(ctx context.Context, kind domain.TriggerKind) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+campaignColumns+` FROM automation_campaigns WHERE active AND trigger_kind = $1 ORDER BY id`,
		string(kind))
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()
	out, err := collectCampaigns(rows)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	return out, nil
}

// CampaignIDs returns every campaign id.
func (r *CampaignRepo) CampaignIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM automation_campaigns ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list campaign ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan campaign id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReconcileStats recounts a campaign's delivery records and overwrites its
// counters in one transaction. The campaign row is locked before the count,
// so a concurrent transition either commits first and is counted, or waits
// on the lock and bumps the counters written here.
func (r *CampaignRepo) ReconcileStats(ctx context.Context, campaignID string) (domain.CampaignStats, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.CampaignStats{}, fmt.Errorf("begin reconcile: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM automation_campaigns WHERE id = $1 FOR UPDATE`, campaignID).Scan(&id)
	if err == sql.ErrNoRows {
		return domain.CampaignStats{}, domain.ErrCampaignNotFound
	}
	if err != nil {
		return domain.CampaignStats{}, fmt.Errorf("lock campaign: %w", err)
	}

	var (
		st   domain.CampaignStats
		last sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		UPDATE automation_campaigns c
		SET total_triggered = t.triggered, total_sent = t.sent, total_failed = t.failed,
		    total_opened = t.opened, total_clicked = t.clicked, last_triggered_at = t.last
		FROM (
			SELECT COUNT(DISTINCT enrollment_id) AS triggered,
			       COUNT(*) FILTER (WHERE status = 'sent') AS sent,
			       COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			       COUNT(*) FILTER (WHERE opened) AS opened,
			       COUNT(*) FILTER (WHERE clicked) AS clicked,
			       MAX(created_at) AS last
			FROM automation_deliveries
			WHERE campaign_id = $1
		) t
		WHERE c.id = $1
		RETURNING c.total_triggered, c.total_sent, c.total_failed, c.total_opened, c.total_clicked, c.last_triggered_at
	`, campaignID).Scan(&st.TotalTriggered, &st.TotalSent, &st.TotalFailed, &st.TotalOpened, &st.TotalClicked, &last)
	if err != nil {
		return domain.CampaignStats{}, fmt.Errorf("reconcile stats: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.CampaignStats{}, fmt.Errorf("commit reconcile: %w", err)
	}
	st.LastTriggeredAt = timePtr(last)
	return st, nil
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
