package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/config"
	"github.com/driftline/outreach-backend/internal/ratelimit"
)

const synthesiaDefaultBaseURL = "https://api.synthesia.io"

type SynthesiaProvider struct {
	cfg    config.ProviderConfig
	client *apiClient
}

func NewSynthesia(cfg config.ProviderConfig, limiter ratelimit.Limiter) *SynthesiaProvider {
	base := cfg.BaseURL
	if base == "" {
		base = synthesiaDefaultBaseURL
	}
	return &SynthesiaProvider{
		cfg: cfg,
		client: newAPIClient("synthesia", base, limiter, map[string]string{
			"Authorization": cfg.APIKey,
		}),
	}
}

func (p *SynthesiaProvider) Send(ctx context.Context, params SendParams) (SendResult, error) {
	body := map[string]any{
		"input": []map[string]any{{
			"scriptText": params.Script,
		}},
		"ctaSettings": map[string]string{
			"label": "Reply",
		},
		"callbackId": strconv.Itoa(params.EnrollmentID) + ":" + strconv.Itoa(params.StepNumber),
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := p.client.doJSON(ctx, http.MethodPost, "/v2/videos", body, &out); err != nil {
		return SendResult{}, err
	}
	return SendResult{ProviderMessageID: out.ID, Status: "in_progress"}, nil
}

func (p *SynthesiaProvider) SendBatch(ctx context.Context, items []SendParams) ([]SendResult, error) {
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

func (p *SynthesiaProvider) GetStatus(ctx context.Context, providerMessageID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := p.client.doJSON(ctx, http.MethodGet, "/v2/videos/"+providerMessageID, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (p *SynthesiaProvider) VerifyWebhookSignature(r *http.Request, body []byte, secret string) error {
	return verifyHMACHeader(r, body, secret, "X-Synthesia-Signature", "synthesia")
}

type synthesiaEvent struct {
	Type string `json:"type"`
	Data struct {
		ID         string `json:"id"`
		CallbackID string `json:"callbackId"`
		CreatedAt  int64  `json:"createdAt"`
	} `json:"data"`
}

func (p *SynthesiaProvider) ParseWebhookEvent(payload []byte) ([]RawEvent, error) {
	var e synthesiaEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, apperrors.NewValidation("payload", "synthesia webhook unparseable: "+err.Error())
	}
	if e.Type == "" {
		return nil, apperrors.NewValidation("payload", "synthesia webhook missing type")
	}
	enrollmentID, step := splitCallbackID(e.Data.CallbackID)
	occurred := time.Now().UTC()
	if e.Data.CreatedAt > 0 {
		occurred = time.Unix(e.Data.CreatedAt, 0).UTC()
	}
	return []RawEvent{{
		Type:         e.Type,
		EventID:      e.Data.ID + ":" + e.Type,
		EnrollmentID: enrollmentID,
		StepNumber:   step,
		OccurredAt:   occurred,
		Payload:      json.RawMessage(payload),
	}}, nil
}

func (p *SynthesiaProvider) Capabilities() Capabilities {
	return Capabilities{Name: "synthesia", Channel: "video", SupportsBatch: false, MaxBatchSize: 1}
}

func (p *SynthesiaProvider) ValidateConfig() error {
	if p.cfg.APIKey == "" {
		return apperrors.NewValidation("VIDEO_API_KEY", "synthesia requires an API key")
	}
	if p.cfg.WebhookSecret == "" {
		return apperrors.NewValidation("VIDEO_WEBHOOK_SECRET", "synthesia requires a webhook signing secret")
	}
	return nil
}

var _ VideoProvider = (*SynthesiaProvider)(nil)
