package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/driftline/outreach-backend/internal/model"
)

// SendParams carries everything a vendor needs for one outbound action. The
// enrollment id and step number travel as vendor metadata so webhooks can be
// routed back to the owning enrollment.
type SendParams struct {
	EnrollmentID int
	StepNumber   int
	Contact      model.Contact
	Subject      string
	Body         string
	Action       string // linkedin step action
	Script       string // video script
}

type SendResult struct {
	ProviderMessageID string
	Status            string
}

type Capabilities struct {
	Name          string
	Channel       string
	SupportsBatch bool
	MaxBatchSize  int
}

// RawEvent is one vendor webhook event before normalization. Type holds the
// vendor's own vocabulary.
type RawEvent struct {
	Type         string
	EventID      string
	EnrollmentID int
	StepNumber   int
	OccurredAt   time.Time
	Payload      json.RawMessage
}

// Provider is the contract every vendor implementation satisfies. Swapping
// vendors is a configuration change only; callers never see vendor types.
type Provider interface {
	Send(ctx context.Context, params SendParams) (SendResult, error)
	SendBatch(ctx context.Context, items []SendParams) ([]SendResult, error)
	GetStatus(ctx context.Context, providerMessageID string) (string, error)
	VerifyWebhookSignature(r *http.Request, body []byte, secret string) error
	ParseWebhookEvent(payload []byte) ([]RawEvent, error)
	Capabilities() Capabilities
	ValidateConfig() error
}

// Capability interfaces keep the three channels distinct at wiring time even
// though the method set is shared.
type EmailProvider interface{ Provider }

type LinkedInProvider interface{ Provider }

type VideoProvider interface{ Provider }
