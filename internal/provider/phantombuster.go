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

const phantombusterDefaultBaseURL = "https://api.phantombuster.com"

// PhantomBusterProvider launches LinkedIn automation agents. One agent launch
// per step action; results and engagement arrive through the agent webhook.
type PhantomBusterProvider struct {
	cfg    config.ProviderConfig
	client *apiClient
}

func NewPhantomBuster(cfg config.ProviderConfig, limiter ratelimit.Limiter) *PhantomBusterProvider {
	base := cfg.BaseURL
	if base == "" {
		base = phantombusterDefaultBaseURL
	}
	return &PhantomBusterProvider{
		cfg: cfg,
		client: newAPIClient("phantombuster", base, limiter, map[string]string{
			"X-Phantombuster-Key": cfg.APIKey,
		}),
	}
}

func (p *PhantomBusterProvider) Send(ctx context.Context, params SendParams) (SendResult, error) {
	body := map[string]any{
		"argument": map[string]any{
			"action":        params.Action,
			"profileUrl":    params.Contact.LinkedInURL,
			"message":       params.Body,
			"enrollment_id": params.EnrollmentID,
			"step_number":   params.StepNumber,
		},
	}
	var out struct {
		ContainerID string `json:"containerId"`
	}
	if err := p.client.doJSON(ctx, http.MethodPost, "/api/v2/agents/launch", body, &out); err != nil {
		return SendResult{}, err
	}
	return SendResult{ProviderMessageID: out.ContainerID, Status: "launched"}, nil
}

func (p *PhantomBusterProvider) SendBatch(ctx context.Context, items []SendParams) ([]SendResult, error) {
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

func (p *PhantomBusterProvider) GetStatus(ctx context.Context, providerMessageID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := p.client.doJSON(ctx, http.MethodGet, "/api/v2/containers/fetch?id="+providerMessageID, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (p *PhantomBusterProvider) VerifyWebhookSignature(r *http.Request, body []byte, secret string) error {
	return verifyHMACHeader(r, body, secret, "X-Phantombuster-Signature", "phantombuster")
}

type phantombusterEvent struct {
	Event        string `json:"event"`
	ResultID     string `json:"resultId"`
	EnrollmentID int    `json:"enrollment_id"`
	StepNumber   int    `json:"step_number"`
	FinishedAt   string `json:"finishedAt"`
}

func (p *PhantomBusterProvider) ParseWebhookEvent(payload []byte) ([]RawEvent, error) {
	var e phantombusterEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, apperrors.NewValidation("payload", "phantombuster webhook unparseable: "+err.Error())
	}
	if e.Event == "" {
		return nil, apperrors.NewValidation("payload", "phantombuster webhook missing event")
	}
	occurred, err := time.Parse(time.RFC3339, e.FinishedAt)
	if err != nil {
		occurred = time.Now().UTC()
	}
	return []RawEvent{{
		Type:         e.Event,
		EventID:      e.ResultID,
		EnrollmentID: e.EnrollmentID,
		StepNumber:   e.StepNumber,
		OccurredAt:   occurred,
		Payload:      json.RawMessage(payload),
	}}, nil
}

func (p *PhantomBusterProvider) Capabilities() Capabilities {
	return Capabilities{Name: "phantombuster", Channel: "linkedin", SupportsBatch: false, MaxBatchSize: 1}
}

func (p *PhantomBusterProvider) ValidateConfig() error {
	if p.cfg.APIKey == "" {
		return apperrors.NewValidation("LINKEDIN_API_KEY", "phantombuster requires an API key")
	}
	if p.cfg.WebhookSecret == "" {
		return apperrors.NewValidation("LINKEDIN_WEBHOOK_SECRET", "phantombuster requires a webhook signing secret")
	}
	return nil
}

var _ LinkedInProvider = (*PhantomBusterProvider)(nil)
