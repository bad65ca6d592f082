package model

import (
	"encoding/json"
	"time"
)

// Campaign template types.
const (
	TemplateTypeEmail        = "email"
	TemplateTypeLinkedIn     = "linkedin"
	TemplateTypeMultiChannel = "multi_channel"
)

type CampaignTemplate struct {
	ID        int             `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Type      string          `db:"type" json:"type"`
	PathType  string          `db:"path_type" json:"path_type"`
	Settings  json.RawMessage `db:"settings" json:"settings,omitempty"`
	IsActive  bool            `db:"is_active" json:"is_active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time      `db:"updated_at" json:"updated_at,omitempty"`

	EmailSteps    []EmailSequenceStep    `json:"email_steps,omitempty"`
	LinkedInSteps []LinkedInSequenceStep `json:"linkedin_steps,omitempty"`
}

type EmailSequenceStep struct {
	ID         int    `db:"id" json:"id"`
	TemplateID int    `db:"template_id" json:"template_id"`
	StepNumber int    `db:"step_number" json:"step_number"`
	Subject    string `db:"subject" json:"subject"`
	Body       string `db:"body" json:"body"`
	DelayHours int    `db:"delay_hours" json:"delay_hours"`
}

// LinkedIn step actions.
const (
	LinkedInActionVisit   = "profile_visit"
	LinkedInActionConnect = "connection_request"
	LinkedInActionMessage = "message"
)

type LinkedInSequenceStep struct {
	ID         int    `db:"id" json:"id"`
	TemplateID int    `db:"template_id" json:"template_id"`
	StepNumber int    `db:"step_number" json:"step_number"`
	Action     string `db:"action" json:"action"`
	Message    string `db:"message" json:"message"`
	DelayHours int    `db:"delay_hours" json:"delay_hours"`
}

// StepCount returns the total number of sequence steps across channels.
func (t *CampaignTemplate) StepCount() int {
	return len(t.EmailSteps) + len(t.LinkedInSteps)
}
