package repository

import (
	"context"
	"database/sql"

	"github.com/driftline/outreach-backend/internal/model"
)

type EventRepositoryInterface interface {
	InsertWithEffects(ctx context.Context, e *model.CampaignEvent, instanceID int, increments map[string]int, stopStatus string) (bool, error)
	CountsByType(ctx context.Context, instanceID int) (map[string]int, error)
	CountsByStep(ctx context.Context, instanceID int) ([]StepCounts, error)
	ListByEnrollment(ctx context.Context, enrollmentID, limit int) ([]*model.CampaignEvent, error)
}

// StepCounts is one row of the per-step breakdown.
type StepCounts struct {
	StepNumber int            `json:"step_number"`
	Counts     map[string]int `json:"counts"`
}

type EventRepository struct {
	DB *sql.DB
}

// InsertWithEffects persists a normalized event together with its side
// effects in one transaction: the instance counter bumps and, when stopStatus
// is non-empty, stopping the enrollment. A duplicate provider_event_id hits
// the partial unique index and the whole transaction rolls back as
// inserted=false, so a vendor retry is a no-op that can never re-apply a
// counter or leave the event row without its increments.
func (r *EventRepository) InsertWithEffects(ctx context.Context, e *model.CampaignEvent, instanceID int, increments map[string]int, stopStatus string) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
        INSERT INTO campaign_events (enrollment_id, event_type, channel, provider, provider_event_id, step_number, occurred_at, raw_payload)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (provider_event_id) WHERE provider_event_id IS NOT NULL DO NOTHING
        RETURNING id
    `, e.EnrollmentID, e.EventType, e.Channel, e.Provider, e.ProviderEventID, e.StepNumber, e.OccurredAt, nullableBytes(e.RawPayload)).Scan(&e.ID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := applyCounterIncrements(ctx, tx, instanceID, increments); err != nil {
		return false, err
	}
	if stopStatus != "" {
		if _, err := tx.ExecContext(ctx, `
            UPDATE campaign_enrollments SET status=$1, next_action_at=NULL, updated_at=now()
            WHERE id=$2`, stopStatus, e.EnrollmentID); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}

// CountsByType computes the instance funnel as one grouped query. Event
// history is never materialized in application memory.
func (r *EventRepository) CountsByType(ctx context.Context, instanceID int) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT ev.event_type, COUNT(*)
        FROM campaign_events ev
        JOIN campaign_enrollments en ON en.id = ev.enrollment_id
        WHERE en.instance_id = $1
        GROUP BY ev.event_type
    `, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		counts[eventType] = count
	}
	return counts, rows.Err()
}

func (r *EventRepository) CountsByStep(ctx context.Context, instanceID int) ([]StepCounts, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT ev.step_number, ev.event_type, COUNT(*)
        FROM campaign_events ev
        JOIN campaign_enrollments en ON en.id = ev.enrollment_id
        WHERE en.instance_id = $1
        GROUP BY ev.step_number, ev.event_type
        ORDER BY ev.step_number
    `, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []StepCounts{}
	byStep := map[int]int{} // step number -> index in steps
	for rows.Next() {
		var step int
		var eventType string
		var count int
		if err := rows.Scan(&step, &eventType, &count); err != nil {
			return nil, err
		}
		idx, ok := byStep[step]
		if !ok {
			steps = append(steps, StepCounts{StepNumber: step, Counts: map[string]int{}})
			idx = len(steps) - 1
			byStep[step] = idx
		}
		steps[idx].Counts[eventType] = count
	}
	return steps, rows.Err()
}

func (r *EventRepository) ListByEnrollment(ctx context.Context, enrollmentID, limit int) ([]*model.CampaignEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `
        SELECT id, enrollment_id, event_type, channel, provider, provider_event_id, step_number, occurred_at, raw_payload, created_at
        FROM campaign_events WHERE enrollment_id=$1
        ORDER BY occurred_at DESC LIMIT $2
    `, enrollmentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*model.CampaignEvent{}
	for rows.Next() {
		var e model.CampaignEvent
		var raw []byte
		if err := rows.Scan(&e.ID, &e.EnrollmentID, &e.EventType, &e.Channel, &e.Provider,
			&e.ProviderEventID, &e.StepNumber, &e.OccurredAt, &raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.RawPayload = raw
		events = append(events, &e)
	}
	return events, rows.Err()
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ EventRepositoryInterface = (*EventRepository)(nil)
