package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/model"
)

type TemplateRepositoryInterface interface {
	Create(ctx context.Context, t *model.CampaignTemplate) error
	GetByID(ctx context.Context, id int) (*model.CampaignTemplate, error)
	List(ctx context.Context, offset, limit int, templateType string, activeOnly bool) ([]*model.CampaignTemplate, int, error)
	Update(ctx context.Context, t *model.CampaignTemplate) error
	DeactivateIfUnused(ctx context.Context, id int) error
	GetEmailStep(ctx context.Context, templateID, stepNumber int) (*model.EmailSequenceStep, error)
	GetLinkedInStep(ctx context.Context, templateID, stepNumber int) (*model.LinkedInSequenceStep, error)
}

type TemplateRepository struct {
	DB *sql.DB
}

// Create inserts the template and its sequence steps in one transaction.
func (r *TemplateRepository) Create(ctx context.Context, t *model.CampaignTemplate) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t.CreatedAt = time.Now()
	t.IsActive = true
	if len(t.Settings) == 0 {
		t.Settings = []byte(`{}`)
	}
	err = tx.QueryRowContext(ctx, `
        INSERT INTO campaign_templates (name, type, path_type, settings, is_active, created_at)
        VALUES ($1, $2, $3, $4, TRUE, $5)
        RETURNING id
    `, t.Name, t.Type, t.PathType, []byte(t.Settings), t.CreatedAt).Scan(&t.ID)
	if err != nil {
		return err
	}

	for i := range t.EmailSteps {
		s := &t.EmailSteps[i]
		s.TemplateID = t.ID
		err = tx.QueryRowContext(ctx, `
            INSERT INTO email_sequence_steps (template_id, step_number, subject, body, delay_hours)
            VALUES ($1, $2, $3, $4, $5)
            RETURNING id
        `, t.ID, s.StepNumber, s.Subject, s.Body, s.DelayHours).Scan(&s.ID)
		if err != nil {
			return err
		}
	}
	for i := range t.LinkedInSteps {
		s := &t.LinkedInSteps[i]
		s.TemplateID = t.ID
		err = tx.QueryRowContext(ctx, `
            INSERT INTO linkedin_sequence_steps (template_id, step_number, action, message, delay_hours)
            VALUES ($1, $2, $3, $4, $5)
            RETURNING id
        `, t.ID, s.StepNumber, s.Action, s.Message, s.DelayHours).Scan(&s.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *TemplateRepository) GetByID(ctx context.Context, id int) (*model.CampaignTemplate, error) {
	var t model.CampaignTemplate
	var settings []byte
	err := r.DB.QueryRowContext(ctx, `
        SELECT id, name, type, path_type, settings, is_active, created_at, updated_at
        FROM campaign_templates WHERE id=$1
    `, id).Scan(&t.ID, &t.Name, &t.Type, &t.PathType, &settings, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("template", id)
	}
	if err != nil {
		return nil, err
	}
	t.Settings = settings

	if err := r.loadSteps(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepository) loadSteps(ctx context.Context, t *model.CampaignTemplate) error {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT id, template_id, step_number, subject, body, delay_hours
        FROM email_sequence_steps WHERE template_id=$1 ORDER BY step_number
    `, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var s model.EmailSequenceStep
		if err := rows.Scan(&s.ID, &s.TemplateID, &s.StepNumber, &s.Subject, &s.Body, &s.DelayHours); err != nil {
			return err
		}
		t.EmailSteps = append(t.EmailSteps, s)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	liRows, err := r.DB.QueryContext(ctx, `
        SELECT id, template_id, step_number, action, message, delay_hours
        FROM linkedin_sequence_steps WHERE template_id=$1 ORDER BY step_number
    `, t.ID)
	if err != nil {
		return err
	}
	defer liRows.Close()
	for liRows.Next() {
		var s model.LinkedInSequenceStep
		if err := liRows.Scan(&s.ID, &s.TemplateID, &s.StepNumber, &s.Action, &s.Message, &s.DelayHours); err != nil {
			return err
		}
		t.LinkedInSteps = append(t.LinkedInSteps, s)
	}
	return liRows.Err()
}

func (r *TemplateRepository) List(ctx context.Context, offset, limit int, templateType string, activeOnly bool) ([]*model.CampaignTemplate, int, error) {
	query := `SELECT id, name, type, path_type, settings, is_active, created_at, updated_at FROM campaign_templates WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if templateType != "" {
		query += fmt.Sprintf(" AND type=$%d", argPos)
		args = append(args, templateType)
		argPos++
	}
	if activeOnly {
		query += " AND is_active=TRUE"
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	templates := []*model.CampaignTemplate{}
	for rows.Next() {
		t := &model.CampaignTemplate{}
		var settings []byte
		if err := rows.Scan(&t.ID, &t.Name, &t.Type, &t.PathType, &settings, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, err
		}
		t.Settings = settings
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaign_templates WHERE 1=1`
	countArgs := []interface{}{}
	if templateType != "" {
		countQuery += " AND type=$1"
		countArgs = append(countArgs, templateType)
	}
	if activeOnly {
		countQuery += " AND is_active=TRUE"
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return templates, total, nil
}

func (r *TemplateRepository) Update(ctx context.Context, t *model.CampaignTemplate) error {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE campaign_templates SET name=$1, path_type=$2, settings=$3, updated_at=now()
        WHERE id=$4
    `, t.Name, t.PathType, []byte(t.Settings), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFound("template", t.ID)
	}
	return nil
}

// DeactivateIfUnused soft-deletes the template. The row lock plus the in-tx
// active-instance count closes the race where an instance is created after
// the check but before the deactivate.
func (r *TemplateRepository) DeactivateIfUnused(ctx context.Context, id int) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var isActive bool
	err = tx.QueryRowContext(ctx, `
        SELECT is_active FROM campaign_templates WHERE id=$1 FOR UPDATE
    `, id).Scan(&isActive)
	if err == sql.ErrNoRows {
		return apperrors.NewNotFound("template", id)
	}
	if err != nil {
		return err
	}

	var activeInstances int
	err = tx.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM campaign_instances
        WHERE template_id=$1 AND status IN ('draft','active','paused')
    `, id).Scan(&activeInstances)
	if err != nil {
		return err
	}
	if activeInstances > 0 {
		return apperrors.NewConflict("template %d has %d active instance(s)", id, activeInstances)
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE campaign_templates SET is_active=FALSE, updated_at=now() WHERE id=$1
    `, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *TemplateRepository) GetEmailStep(ctx context.Context, templateID, stepNumber int) (*model.EmailSequenceStep, error) {
	var s model.EmailSequenceStep
	err := r.DB.QueryRowContext(ctx, `
        SELECT id, template_id, step_number, subject, body, delay_hours
        FROM email_sequence_steps WHERE template_id=$1 AND step_number=$2
    `, templateID, stepNumber).Scan(&s.ID, &s.TemplateID, &s.StepNumber, &s.Subject, &s.Body, &s.DelayHours)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *TemplateRepository) GetLinkedInStep(ctx context.Context, templateID, stepNumber int) (*model.LinkedInSequenceStep, error) {
	var s model.LinkedInSequenceStep
	err := r.DB.QueryRowContext(ctx, `
        SELECT id, template_id, step_number, action, message, delay_hours
        FROM linkedin_sequence_steps WHERE template_id=$1 AND step_number=$2
    `, templateID, stepNumber).Scan(&s.ID, &s.TemplateID, &s.StepNumber, &s.Action, &s.Message, &s.DelayHours)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
