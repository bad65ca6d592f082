package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/config"
	"github.com/driftline/outreach-backend/internal/ratelimit"
)

// UnipileProvider drives LinkedIn actions through the Unipile messaging API.
type UnipileProvider struct {
	cfg    config.ProviderConfig
	client *apiClient
}

func NewUnipile(cfg config.ProviderConfig, limiter ratelimit.Limiter) *UnipileProvider {
	return &UnipileProvider{
		cfg: cfg,
		client: newAPIClient("unipile", cfg.BaseURL, limiter, map[string]string{
			"X-API-KEY": cfg.APIKey,
		}),
	}
}

func (p *UnipileProvider) Send(ctx context.Context, params SendParams) (SendResult, error) {
	body := map[string]any{
		"action":      params.Action,
		"profile_url": params.Contact.LinkedInURL,
		"message":     params.Body,
		"metadata": map[string]int{
			"enrollment_id": params.EnrollmentID,
			"step_number":   params.StepNumber,
		},
	}
	var out struct {
		ActionID string `json:"action_id"`
		Status   string `json:"status"`
	}
	if err := p.client.doJSON(ctx, http.MethodPost, "/api/v1/linkedin/actions", body, &out); err != nil {
		return SendResult{}, err
	}
	return SendResult{ProviderMessageID: out.ActionID, Status: out.Status}, nil
}

// SendBatch is sequential on purpose: LinkedIn automation burns account trust
// when actions burst, so each item pays the rate limiter individually.
func (p *UnipileProvider) SendBatch(ctx context.Context, items []SendParams) ([]SendResult, error) {
	results := make([]SendResult, 0, len(items))
	for _, item := range items {
		res, err := p.Send(ctx, item)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (p *UnipileProvider) GetStatus(ctx context.Context, providerMessageID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := p.client.doJSON(ctx, http.MethodGet, "/api/v1/linkedin/actions/"+providerMessageID, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (p *UnipileProvider) VerifyWebhookSignature(r *http.Request, body []byte, secret string) error {
	return verifyHMACHeader(r, body, secret, "X-Unipile-Signature", "unipile")
}

type unipileEvent struct {
	Event     string `json:"event"`
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
	Metadata  struct {
		EnrollmentID int `json:"enrollment_id"`
		StepNumber   int `json:"step_number"`
	} `json:"metadata"`
}

func (p *UnipileProvider) ParseWebhookEvent(payload []byte) ([]RawEvent, error) {
	var e unipileEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, apperrors.NewValidation("payload", "unipile webhook unparseable: "+err.Error())
	}
	if e.Event == "" {
		return nil, apperrors.NewValidation("payload", "unipile webhook missing event")
	}
	occurred, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		occurred = time.Now().UTC()
	}
	return []RawEvent{{
		Type:         e.Event,
		EventID:      e.EventID,
		EnrollmentID: e.Metadata.EnrollmentID,
		StepNumber:   e.Metadata.StepNumber,
		OccurredAt:   occurred,
		Payload:      json.RawMessage(payload),
	}}, nil
}

func (p *UnipileProvider) Capabilities() Capabilities {
	return Capabilities{Name: "unipile", Channel: "linkedin", SupportsBatch: false, MaxBatchSize: 1}
}

func (p *UnipileProvider) ValidateConfig() error {
	if p.cfg.APIKey == "" {
		return apperrors.NewValidation("LINKEDIN_API_KEY", "unipile requires an API key")
	}
	if p.cfg.BaseURL == "" {
		return apperrors.NewValidation("LINKEDIN_BASE_URL", "unipile requires the account DSN base URL")
	}
	if p.cfg.WebhookSecret == "" {
		return apperrors.NewValidation("LINKEDIN_WEBHOOK_SECRET", "unipile requires a webhook signing secret")
	}
	return nil
}

var _ LinkedInProvider = (*UnipileProvider)(nil)
