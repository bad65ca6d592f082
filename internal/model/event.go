package model

import (
	"encoding/json"
	"time"
)

// Channels an event can arrive on.
const (
	ChannelEmail    = "email"
	ChannelLinkedIn = "linkedin"
	ChannelVideo    = "video"
)

// CampaignEvent is a normalized delivery/engagement event. ProviderEventID is
// unique when present so vendor webhook retries dedupe at insert time.
type CampaignEvent struct {
	ID              int             `db:"id" json:"id"`
	EnrollmentID    int             `db:"enrollment_id" json:"enrollment_id"`
	EventType       string          `db:"event_type" json:"event_type"`
	Channel         string          `db:"channel" json:"channel"`
	Provider        string          `db:"provider" json:"provider"`
	ProviderEventID *string         `db:"provider_event_id" json:"provider_event_id,omitempty"`
	StepNumber      int             `db:"step_number" json:"step_number"`
	OccurredAt      time.Time       `db:"occurred_at" json:"occurred_at"`
	RawPayload      json.RawMessage `db:"raw_payload" json:"raw_payload,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}
