package model

import (
	"encoding/json"
	"time"
)

// Job statuses.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobDeadLetter = "dead_letter"
)

// Well-known job types routed by the worker pool.
const (
	JobTypeSendEmailStep    = "email.send_step"
	JobTypeSendLinkedInStep = "linkedin.send_step"
	JobTypeGenerateVideo    = "video.generate"
)

type Job struct {
	ID             string          `db:"id" json:"id"`
	Type           string          `db:"type" json:"type"`
	Payload        json.RawMessage `db:"payload" json:"payload"`
	Priority       int             `db:"priority" json:"priority"`
	Status         string          `db:"status" json:"status"`
	Attempts       int             `db:"attempts" json:"attempts"`
	MaxAttempts    int             `db:"max_attempts" json:"max_attempts"`
	ScheduledAt    time.Time       `db:"scheduled_at" json:"scheduled_at"`
	ClaimedBy      string          `db:"claimed_by" json:"claimed_by,omitempty"`
	IdempotencyKey *string         `db:"idempotency_key" json:"idempotency_key,omitempty"`
	Result         json.RawMessage `db:"result" json:"result,omitempty"`
	LastError      string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// SendStepPayload is the payload for email.send_step and linkedin.send_step jobs.
type SendStepPayload struct {
	EnrollmentID int `json:"enrollment_id"`
	StepNumber   int `json:"step_number"`
}

// GenerateVideoPayload is the payload for video.generate jobs.
type GenerateVideoPayload struct {
	EnrollmentID int    `json:"enrollment_id"`
	StepNumber   int    `json:"step_number"`
	Script       string `json:"script,omitempty"`
}
