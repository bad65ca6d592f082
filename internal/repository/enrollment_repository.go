package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/model"
)

type EnrollmentRepositoryInterface interface {
	BulkEnroll(ctx context.Context, instanceID int, contactIDs []int, nextActionAt time.Time) (int, error)
	GetByID(ctx context.Context, id int) (*model.CampaignEnrollment, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.CampaignEnrollment, error)
	AdvanceStep(ctx context.Context, id, nextStep int, nextActionAt *time.Time) error
	SetStatus(ctx context.Context, id int, status string) error
}

type EnrollmentRepository struct {
	DB *sql.DB
}

// BulkEnroll inserts enrollments in one transaction. Contacts already
// enrolled in the instance are skipped via ON CONFLICT DO NOTHING, never an
// error, and the enrolled counter moves by the number actually inserted.
func (r *EnrollmentRepository) BulkEnroll(ctx context.Context, instanceID int, contactIDs []int, nextActionAt time.Time) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `
        SELECT status FROM campaign_instances WHERE id=$1 FOR UPDATE
    `, instanceID).Scan(&status)
	if err == sql.ErrNoRows {
		return 0, apperrors.NewNotFound("campaign instance", instanceID)
	}
	if err != nil {
		return 0, err
	}
	if status == model.InstanceCompleted || status == model.InstanceFailed {
		return 0, apperrors.NewConflict("cannot enroll into %s instance %d", status, instanceID)
	}

	res, err := tx.ExecContext(ctx, `
        INSERT INTO campaign_enrollments (instance_id, contact_id, status, current_step, next_action_at)
        SELECT $1, unnest($2::int[]), 'active', 1, $3
        ON CONFLICT (instance_id, contact_id) DO NOTHING
    `, instanceID, pq.Array(contactIDs), nextActionAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, apperrors.NewValidation("contact_ids", "one or more contacts do not exist")
		}
		return 0, err
	}
	inserted64, _ := res.RowsAffected()
	inserted := int(inserted64)

	if inserted > 0 {
		if _, err := tx.ExecContext(ctx, `
            UPDATE campaign_instances SET enrolled_count = enrolled_count + $1, updated_at=now()
            WHERE id=$2
        `, inserted, instanceID); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *EnrollmentRepository) GetByID(ctx context.Context, id int) (*model.CampaignEnrollment, error) {
	e, err := scanEnrollment(r.DB.QueryRowContext(ctx, selectEnrollment+` WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("enrollment", id)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

const selectEnrollment = `
        SELECT id, instance_id, contact_id, status, current_step, next_action_at, metadata, created_at, updated_at
        FROM campaign_enrollments`

// ListDue returns active enrollments whose next action is due on an active
// instance. The sweeper turns each row into a send job.
func (r *EnrollmentRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.CampaignEnrollment, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT e.id, e.instance_id, e.contact_id, e.status, e.current_step, e.next_action_at, e.metadata, e.created_at, e.updated_at
        FROM campaign_enrollments e
        JOIN campaign_instances i ON i.id = e.instance_id
        WHERE e.status='active' AND e.next_action_at IS NOT NULL AND e.next_action_at <= $1
          AND i.status='active'
        ORDER BY e.next_action_at ASC
        LIMIT $2
    `, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	enrollments := []*model.CampaignEnrollment{}
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

// AdvanceStep moves the enrollment to nextStep. A nil nextActionAt means the
// sequence is exhausted and the enrollment completes.
func (r *EnrollmentRepository) AdvanceStep(ctx context.Context, id, nextStep int, nextActionAt *time.Time) error {
	var res sql.Result
	var err error
	if nextActionAt == nil {
		res, err = r.DB.ExecContext(ctx, `
            UPDATE campaign_enrollments
            SET current_step=$1, next_action_at=NULL, status='completed', updated_at=now()
            WHERE id=$2 AND status='active'
        `, nextStep, id)
	} else {
		res, err = r.DB.ExecContext(ctx, `
            UPDATE campaign_enrollments
            SET current_step=$1, next_action_at=$2, updated_at=now()
            WHERE id=$3 AND status='active'
        `, nextStep, *nextActionAt, id)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewConflict("enrollment %d is not active", id)
	}
	return nil
}

func (r *EnrollmentRepository) SetStatus(ctx context.Context, id int, status string) error {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE campaign_enrollments SET status=$1, next_action_at=NULL, updated_at=now()
        WHERE id=$2
    `, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFound("enrollment", id)
	}
	return nil
}

// isForeignKeyViolation reports whether err is a Postgres foreign key
// violation (SQLSTATE 23503), e.g. enrolling a contact id that does not exist.
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func scanEnrollment(row interface{ Scan(...any) error }) (*model.CampaignEnrollment, error) {
	var e model.CampaignEnrollment
	var metadata []byte
	err := row.Scan(&e.ID, &e.InstanceID, &e.ContactID, &e.Status, &e.CurrentStep,
		&e.NextActionAt, &metadata, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Metadata = metadata
	return &e, nil
}

var _ EnrollmentRepositoryInterface = (*EnrollmentRepository)(nil)
