package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/db"
	"github.com/driftline/outreach-backend/internal/model"
)

func TestIsForeignKeyViolation(t *testing.T) {
	fk := &pq.Error{Code: "23503", Constraint: "campaign_enrollments_contact_id_fkey"}
	assert.True(t, isForeignKeyViolation(fk))
	assert.True(t, isForeignKeyViolation(fmt.Errorf("bulk enroll: %w", fk)))

	assert.False(t, isForeignKeyViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isForeignKeyViolation(errors.New("connection refused")))
	assert.False(t, isForeignKeyViolation(nil))
}

// openTestDB connects to TEST_DATABASE_URL and starts from empty campaign
// tables; without the variable the caller is skipped.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	conn, err := db.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(conn))
	_, err = conn.Exec(`TRUNCATE campaign_events, campaign_enrollments, campaign_instances,
		email_sequence_steps, linkedin_sequence_steps, campaign_templates, contacts RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return conn
}

// seedActiveEnrollment creates template, instance, contact and one active
// enrollment, returning the enrollment and instance ids.
func seedActiveEnrollment(t *testing.T, conn *sql.DB) (enrollmentID, instanceID int) {
	t.Helper()
	ctx := context.Background()

	var templateID int
	require.NoError(t, conn.QueryRowContext(ctx, `
		INSERT INTO campaign_templates (name, type) VALUES ('t', 'email') RETURNING id`).Scan(&templateID))
	_, err := conn.ExecContext(ctx, `
		INSERT INTO email_sequence_steps (template_id, step_number, subject, body) VALUES ($1, 1, 's', 'b')`, templateID)
	require.NoError(t, err)
	require.NoError(t, conn.QueryRowContext(ctx, `
		INSERT INTO campaign_instances (template_id, name, status) VALUES ($1, 'i', 'active') RETURNING id`, templateID).Scan(&instanceID))

	var contactID int
	require.NoError(t, conn.QueryRowContext(ctx, `
		INSERT INTO contacts (email) VALUES ('a@b.c') RETURNING id`).Scan(&contactID))

	repo := &EnrollmentRepository{DB: conn}
	inserted, err := repo.BulkEnroll(ctx, instanceID, []int{contactID}, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, inserted)

	require.NoError(t, conn.QueryRowContext(ctx, `
		SELECT id FROM campaign_enrollments WHERE instance_id=$1 AND contact_id=$2`,
		instanceID, contactID).Scan(&enrollmentID))
	return enrollmentID, instanceID
}

func TestBulkEnrollUnknownContactIsValidationError(t *testing.T) {
	conn := openTestDB(t)
	_, instanceID := seedActiveEnrollment(t, conn)

	repo := &EnrollmentRepository{DB: conn}
	_, err := repo.BulkEnroll(context.Background(), instanceID, []int{99999}, time.Now())

	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve, "a missing contact id must map to the error taxonomy, not a raw driver error")

	// the failed batch must not move the enrolled counter
	var enrolled int
	require.NoError(t, conn.QueryRow(`SELECT enrolled_count FROM campaign_instances WHERE id=$1`, instanceID).Scan(&enrolled))
	assert.Equal(t, 1, enrolled)
}

func TestInsertWithEffectsCommitsAtomically(t *testing.T) {
	conn := openTestDB(t)
	enrollmentID, instanceID := seedActiveEnrollment(t, conn)
	repo := &EventRepository{DB: conn}
	ctx := context.Background()

	eventID := "evt-1"
	event := &model.CampaignEvent{
		EnrollmentID:    enrollmentID,
		EventType:       "email.opened",
		Channel:         model.ChannelEmail,
		Provider:        "sendgrid",
		ProviderEventID: &eventID,
		StepNumber:      1,
		OccurredAt:      time.Now(),
	}
	inserted, err := repo.InsertWithEffects(ctx, event, instanceID, map[string]int{"opened_count": 1}, "")
	require.NoError(t, err)
	require.True(t, inserted)

	var opened int
	require.NoError(t, conn.QueryRow(`SELECT opened_count FROM campaign_instances WHERE id=$1`, instanceID).Scan(&opened))
	assert.Equal(t, 1, opened)

	// a vendor retry of the same provider event id rolls the whole
	// transaction back, so the counter cannot be applied twice
	retry := *event
	inserted, err = repo.InsertWithEffects(ctx, &retry, instanceID, map[string]int{"opened_count": 1}, "")
	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, conn.QueryRow(`SELECT opened_count FROM campaign_instances WHERE id=$1`, instanceID).Scan(&opened))
	assert.Equal(t, 1, opened)

	var events int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM campaign_events`).Scan(&events))
	assert.Equal(t, 1, events)
}

func TestInsertWithEffectsStopsEnrollment(t *testing.T) {
	conn := openTestDB(t)
	enrollmentID, instanceID := seedActiveEnrollment(t, conn)
	repo := &EventRepository{DB: conn}

	eventID := "evt-2"
	event := &model.CampaignEvent{
		EnrollmentID:    enrollmentID,
		EventType:       "email.unsubscribed",
		Channel:         model.ChannelEmail,
		Provider:        "sendgrid",
		ProviderEventID: &eventID,
		StepNumber:      1,
		OccurredAt:      time.Now(),
	}
	inserted, err := repo.InsertWithEffects(context.Background(), event, instanceID, nil, model.EnrollmentUnsubscribed)
	require.NoError(t, err)
	require.True(t, inserted)

	var status string
	var nextActionAt sql.NullTime
	require.NoError(t, conn.QueryRow(`
		SELECT status, next_action_at FROM campaign_enrollments WHERE id=$1`, enrollmentID).Scan(&status, &nextActionAt))
	assert.Equal(t, model.EnrollmentUnsubscribed, status)
	assert.False(t, nextActionAt.Valid)
}
