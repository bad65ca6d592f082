package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/outreach-backend/internal/model"
)

// ErrEmpty is returned by ClaimNext when no job is ready.
var ErrEmpty = errors.New("no jobs ready")

type Queue interface {
	Enqueue(ctx context.Context, jobType string, payload json.RawMessage, opts ...Option) (string, error)
	ClaimNext(ctx context.Context, workerID string) (*model.Job, error)
	Complete(ctx context.Context, jobID string, result json.RawMessage) error
	Fail(ctx context.Context, jobID, errMsg string) error
	Cancel(ctx context.Context, jobID string) error
	Get(ctx context.Context, jobID string) (*model.Job, error)
	RecoverStale(ctx context.Context, olderThan time.Duration) (int, error)
	ListDeadLetters(ctx context.Context, limit int) ([]*model.Job, error)
	Replay(ctx context.Context, jobID string) error
}

type Option func(*enqueueOpts)

type enqueueOpts struct {
	priority       int
	maxAttempts    int
	scheduledAt    time.Time
	idempotencyKey *string
}

func WithPriority(p int) Option { return func(o *enqueueOpts) { o.priority = p } }

func WithMaxAttempts(n int) Option { return func(o *enqueueOpts) { o.maxAttempts = n } }

func WithScheduledAt(t time.Time) Option { return func(o *enqueueOpts) { o.scheduledAt = t } }

// WithIdempotencyKey makes Enqueue return the existing job id instead of
// inserting a second job with the same key.
func WithIdempotencyKey(key string) Option {
	return func(o *enqueueOpts) { o.idempotencyKey = &key }
}

// PostgresQueue is a durable job queue over a jobs table. Claiming is a single
// conditional UPDATE so that under concurrent workers exactly one of them
// receives a given pending job.
type PostgresQueue struct {
	DB *sql.DB
}

func NewPostgresQueue(conn *sql.DB) *PostgresQueue {
	return &PostgresQueue{DB: conn}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, jobType string, payload json.RawMessage, opts ...Option) (string, error) {
	o := enqueueOpts{priority: 5, maxAttempts: 5, scheduledAt: time.Now()}
	for _, opt := range opts {
		opt(&o)
	}
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}

	id := "job_" + uuid.NewString()
	query := `
        INSERT INTO jobs (id, type, payload, priority, status, max_attempts, scheduled_at, idempotency_key)
        VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7)
        ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO UPDATE SET idempotency_key = EXCLUDED.idempotency_key
        RETURNING id
    `
	var returned string
	err := q.DB.QueryRowContext(ctx, query, id, jobType, []byte(payload), o.priority, o.maxAttempts, o.scheduledAt, o.idempotencyKey).Scan(&returned)
	if err != nil {
		return "", err
	}
	return returned, nil
}

// ClaimNext atomically selects and marks the highest-priority ready job as
// processing. FOR UPDATE SKIP LOCKED keeps concurrent claimers off the same
// row without serialization retries.
func (q *PostgresQueue) ClaimNext(ctx context.Context, workerID string) (*model.Job, error) {
	query := `
        UPDATE jobs SET status='processing', claimed_by=$1, updated_at=now()
        WHERE id = (
            SELECT id FROM jobs
            WHERE status='pending' AND scheduled_at <= now()
            ORDER BY priority DESC, scheduled_at ASC
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING id, type, payload, priority, status, attempts, max_attempts,
                  scheduled_at, claimed_by, idempotency_key, result, last_error, created_at, updated_at
    `
	j, err := scanJob(q.DB.QueryRowContext(ctx, query, workerID))
	if err == sql.ErrNoRows {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	tx, err := q.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Releasing the idempotency key matters: a completed job must not block
	// a later Enqueue of the same key, or a skipped-then-completed send step
	// could never be re-enqueued for a still-due enrollment.
	res, err := tx.ExecContext(ctx, `
        UPDATE jobs SET status='completed', result=$1, idempotency_key=NULL, updated_at=now()
        WHERE id=$2 AND status='processing'`, nullableJSON(result), jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("job is not processing: " + jobID)
	}
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO job_attempts (job_id, worker_id, success)
        SELECT id, claimed_by, TRUE FROM jobs WHERE id=$1`, jobID); err != nil {
		return err
	}
	return tx.Commit()
}

// Fail records the attempt and either requeues with exponential backoff or
// dead-letters once attempts reach max_attempts. Dead-lettered jobs keep their
// full error context for manual replay.
func (q *PostgresQueue) Fail(ctx context.Context, jobID, errMsg string) error {
	tx, err := q.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRowContext(ctx, `
        SELECT attempts, max_attempts FROM jobs WHERE id=$1 AND status='processing' FOR UPDATE`,
		jobID).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return errors.New("job is not processing: " + jobID)
	}
	if err != nil {
		return err
	}

	attempts++
	if attempts >= maxAttempts {
		_, err = tx.ExecContext(ctx, `
            UPDATE jobs SET status='dead_letter', attempts=$1, last_error=$2, updated_at=now()
            WHERE id=$3`, attempts, errMsg, jobID)
	} else {
		_, err = tx.ExecContext(ctx, `
            UPDATE jobs SET status='pending', attempts=$1, last_error=$2, claimed_by='',
                   scheduled_at=now() + $3 * interval '1 millisecond', updated_at=now()
            WHERE id=$4`, attempts, errMsg, Backoff(attempts).Milliseconds(), jobID)
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO job_attempts (job_id, worker_id, success, error)
        SELECT id, claimed_by, FALSE, $2 FROM jobs WHERE id=$1`, jobID, errMsg); err != nil {
		return err
	}
	return tx.Commit()
}

// Cancel marks a pending job failed without an attempt. Cancellation is
// cooperative: a processing job finishes its current run. The idempotency
// key is released so the sweeper can enqueue a fresh job later.
func (q *PostgresQueue) Cancel(ctx context.Context, jobID string) error {
	res, err := q.DB.ExecContext(ctx, `
        UPDATE jobs SET status='failed', last_error='canceled', idempotency_key=NULL, updated_at=now()
        WHERE id=$1 AND status='pending'`, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("job is not pending: " + jobID)
	}
	return nil
}

func (q *PostgresQueue) Get(ctx context.Context, jobID string) (*model.Job, error) {
	query := `
        SELECT id, type, payload, priority, status, attempts, max_attempts,
               scheduled_at, claimed_by, idempotency_key, result, last_error, created_at, updated_at
        FROM jobs WHERE id=$1
    `
	j, err := scanJob(q.DB.QueryRowContext(ctx, query, jobID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

// RecoverStale requeues processing jobs whose claim outlived olderThan, for
// workers that died mid-job.
func (q *PostgresQueue) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := q.DB.ExecContext(ctx, `
        UPDATE jobs SET status='pending', claimed_by='', scheduled_at=now(), updated_at=now()
        WHERE status='processing' AND updated_at < now() - $1 * interval '1 second'`,
		int(olderThan.Seconds()))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (q *PostgresQueue) ListDeadLetters(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.DB.QueryContext(ctx, `
        SELECT id, type, payload, priority, status, attempts, max_attempts,
               scheduled_at, claimed_by, idempotency_key, result, last_error, created_at, updated_at
        FROM jobs WHERE status='dead_letter' ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*model.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Replay requeues a dead-lettered job with a fresh retry budget.
func (q *PostgresQueue) Replay(ctx context.Context, jobID string) error {
	res, err := q.DB.ExecContext(ctx, `
        UPDATE jobs SET status='pending', attempts=0, claimed_by='', scheduled_at=now(), updated_at=now()
        WHERE id=$1 AND status='dead_letter'`, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("job is not dead-lettered: " + jobID)
	}
	return nil
}

// Backoff is the retry delay after the given attempt count: exponential from
// one second, capped at five minutes, with up to one second of jitter.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := time.Second << (attempts - 1)
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return d + time.Duration(rand.Int63n(int64(time.Second)))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		j       model.Job
		payload []byte
		idem    sql.NullString
		result  []byte
	)
	err := row.Scan(&j.ID, &j.Type, &payload, &j.Priority, &j.Status, &j.Attempts, &j.MaxAttempts,
		&j.ScheduledAt, &j.ClaimedBy, &idem, &result, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Payload = payload
	if idem.Valid {
		s := idem.String
		j.IdempotencyKey = &s
	}
	if result != nil {
		j.Result = result
	}
	return &j, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

var _ Queue = (*PostgresQueue)(nil)
