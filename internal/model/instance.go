package model

import (
	"encoding/json"
	"time"
)

// Campaign instance statuses.
const (
	InstanceDraft     = "draft"
	InstanceActive    = "active"
	InstancePaused    = "paused"
	InstanceCompleted = "completed"
	InstanceFailed    = "failed"
)

type CampaignInstance struct {
	ID             int             `db:"id" json:"id"`
	TemplateID     int             `db:"template_id" json:"template_id"`
	Name           string          `db:"name" json:"name"`
	Status         string          `db:"status" json:"status"`
	ProviderConfig json.RawMessage `db:"provider_config" json:"provider_config,omitempty"`
	EnrolledCount  int             `db:"enrolled_count" json:"enrolled_count"`
	SentCount      int             `db:"sent_count" json:"sent_count"`
	DeliveredCount int             `db:"delivered_count" json:"delivered_count"`
	OpenedCount    int             `db:"opened_count" json:"opened_count"`
	ClickedCount   int             `db:"clicked_count" json:"clicked_count"`
	RepliedCount   int             `db:"replied_count" json:"replied_count"`
	BouncedCount   int             `db:"bounced_count" json:"bounced_count"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time      `db:"updated_at" json:"updated_at,omitempty"`
}
