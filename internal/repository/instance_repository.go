package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/model"
)

type InstanceRepositoryInterface interface {
	CreateFromTemplate(ctx context.Context, inst *model.CampaignInstance) error
	GetByID(ctx context.Context, id int) (*model.CampaignInstance, error)
	List(ctx context.Context, offset, limit int, status string) ([]*model.CampaignInstance, int, error)
	UpdateStatus(ctx context.Context, id int, newStatus string) error
	ApplyCounterIncrements(ctx context.Context, id int, increments map[string]int) error
}

type InstanceRepository struct {
	DB *sql.DB
}

// counterColumns is the closed set of instance counters increments may touch.
var counterColumns = map[string]bool{
	"enrolled_count":  true,
	"sent_count":      true,
	"delivered_count": true,
	"opened_count":    true,
	"clicked_count":   true,
	"replied_count":   true,
	"bounced_count":   true,
}

// CreateFromTemplate creates an instance inside one transaction that also
// row-locks the template and verifies it is active with at least one step, so
// a concurrent template deactivation cannot slip between check and create.
func (r *InstanceRepository) CreateFromTemplate(ctx context.Context, inst *model.CampaignInstance) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var isActive bool
	err = tx.QueryRowContext(ctx, `
        SELECT is_active FROM campaign_templates WHERE id=$1 FOR UPDATE
    `, inst.TemplateID).Scan(&isActive)
	if err == sql.ErrNoRows {
		return apperrors.NewNotFound("template", inst.TemplateID)
	}
	if err != nil {
		return err
	}
	if !isActive {
		return apperrors.NewConflict("template %d is deactivated", inst.TemplateID)
	}

	var steps int
	err = tx.QueryRowContext(ctx, `
        SELECT (SELECT COUNT(*) FROM email_sequence_steps WHERE template_id=$1)
             + (SELECT COUNT(*) FROM linkedin_sequence_steps WHERE template_id=$1)
    `, inst.TemplateID).Scan(&steps)
	if err != nil {
		return err
	}
	if steps == 0 {
		return apperrors.NewValidation("template_id", fmt.Sprintf("template %d has no sequence steps", inst.TemplateID))
	}

	inst.Status = model.InstanceDraft
	inst.CreatedAt = time.Now()
	if len(inst.ProviderConfig) == 0 {
		inst.ProviderConfig = []byte(`{}`)
	}
	err = tx.QueryRowContext(ctx, `
        INSERT INTO campaign_instances (template_id, name, status, provider_config, created_at)
        VALUES ($1, $2, 'draft', $3, $4)
        RETURNING id
    `, inst.TemplateID, inst.Name, []byte(inst.ProviderConfig), inst.CreatedAt).Scan(&inst.ID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (r *InstanceRepository) GetByID(ctx context.Context, id int) (*model.CampaignInstance, error) {
	inst, err := scanInstance(r.DB.QueryRowContext(ctx, selectInstance+` WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("campaign instance", id)
	}
	if err != nil {
		return nil, err
	}
	return inst, nil
}

const selectInstance = `
        SELECT id, template_id, name, status, provider_config,
               enrolled_count, sent_count, delivered_count, opened_count,
               clicked_count, replied_count, bounced_count, created_at, updated_at
        FROM campaign_instances`

func (r *InstanceRepository) List(ctx context.Context, offset, limit int, status string) ([]*model.CampaignInstance, int, error) {
	query := selectInstance + ` WHERE 1=1`
	args := []interface{}{}
	argPos := 1
	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	instances := []*model.CampaignInstance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, 0, err
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaign_instances WHERE 1=1`
	countArgs := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		countArgs = append(countArgs, status)
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return instances, total, nil
}

// UpdateStatus row-locks the instance, validates the transition and applies
// it. Two racing transitions serialize on the lock; the loser sees the
// winner's status and gets a conflict if the table forbids the move.
func (r *InstanceRepository) UpdateStatus(ctx context.Context, id int, newStatus string) error {
	if !model.ValidInstanceStatus(newStatus) {
		return apperrors.NewValidation("status", "unknown status "+newStatus)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `
        SELECT status FROM campaign_instances WHERE id=$1 FOR UPDATE
    `, id).Scan(&current)
	if err == sql.ErrNoRows {
		return apperrors.NewNotFound("campaign instance", id)
	}
	if err != nil {
		return err
	}

	if !model.CanTransition(current, newStatus) {
		return apperrors.NewConflict("cannot transition instance %d from %s to %s", id, current, newStatus)
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE campaign_instances SET status=$1, updated_at=now() WHERE id=$2
    `, newStatus, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ApplyCounterIncrements bumps aggregate counters in one UPDATE. Column names
// are validated against the closed counter set before they touch SQL.
func (r *InstanceRepository) ApplyCounterIncrements(ctx context.Context, id int, increments map[string]int) error {
	return applyCounterIncrements(ctx, r.DB, id, increments)
}

// execContext is satisfied by both *sql.DB and *sql.Tx, so counter bumps can
// run standalone or inside a caller's transaction.
type execContext interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func applyCounterIncrements(ctx context.Context, ex execContext, id int, increments map[string]int) error {
	if len(increments) == 0 {
		return nil
	}
	sets := make([]string, 0, len(increments))
	args := []interface{}{id}
	argPos := 2
	for col, delta := range increments {
		if !counterColumns[col] {
			return apperrors.NewValidation("counter", "unknown counter column "+col)
		}
		sets = append(sets, fmt.Sprintf("%s = %s + $%d", col, col, argPos))
		args = append(args, delta)
		argPos++
	}
	query := `UPDATE campaign_instances SET ` + strings.Join(sets, ", ") + `, updated_at=now() WHERE id=$1`
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFound("campaign instance", id)
	}
	return nil
}

func scanInstance(row interface{ Scan(...any) error }) (*model.CampaignInstance, error) {
	var inst model.CampaignInstance
	var providerConfig []byte
	err := row.Scan(&inst.ID, &inst.TemplateID, &inst.Name, &inst.Status, &providerConfig,
		&inst.EnrolledCount, &inst.SentCount, &inst.DeliveredCount, &inst.OpenedCount,
		&inst.ClickedCount, &inst.RepliedCount, &inst.BouncedCount, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inst.ProviderConfig = providerConfig
	return &inst, nil
}

var _ InstanceRepositoryInterface = (*InstanceRepository)(nil)
