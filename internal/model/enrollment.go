package model

import (
	"encoding/json"
	"time"
)

// Enrollment statuses.
const (
	EnrollmentActive       = "active"
	EnrollmentPaused       = "paused"
	EnrollmentCompleted    = "completed"
	EnrollmentUnsubscribed = "unsubscribed"
)

// CampaignEnrollment ties one contact to one campaign instance. A contact
// enrolls at most once per instance (unique instance_id+contact_id).
type CampaignEnrollment struct {
	ID           int             `db:"id" json:"id"`
	InstanceID   int             `db:"instance_id" json:"instance_id"`
	ContactID    int             `db:"contact_id" json:"contact_id"`
	Status       string          `db:"status" json:"status"`
	CurrentStep  int             `db:"current_step" json:"current_step"`
	NextActionAt *time.Time      `db:"next_action_at" json:"next_action_at,omitempty"`
	Metadata     json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    *time.Time      `db:"updated_at" json:"updated_at,omitempty"`
}
