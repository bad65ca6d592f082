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

const heygenDefaultBaseURL = "https://api.heygen.com"

// HeyGenProvider generates personalized avatar videos. Generation is async:
// Send starts a render, the outcome arrives as a webhook.
type HeyGenProvider struct {
	cfg    config.ProviderConfig
	client *apiClient
}

func NewHeyGen(cfg config.ProviderConfig, limiter ratelimit.Limiter) *HeyGenProvider {
	base := cfg.BaseURL
	if base == "" {
		base = heygenDefaultBaseURL
	}
	return &HeyGenProvider{
		cfg: cfg,
		client: newAPIClient("heygen", base, limiter, map[string]string{
			"X-Api-Key": cfg.APIKey,
		}),
	}
}

func (p *HeyGenProvider) Send(ctx context.Context, params SendParams) (SendResult, error) {
	body := map[string]any{
		"video_inputs": []map[string]any{{
			"voice": map[string]string{"type": "text", "input_text": params.Script},
		}},
		"callback_id": strconv.Itoa(params.EnrollmentID) + ":" + strconv.Itoa(params.StepNumber),
	}
	var out struct {
		Data struct {
			VideoID string `json:"video_id"`
		} `json:"data"`
	}
	if err := p.client.doJSON(ctx, http.MethodPost, "/v2/video/generate", body, &out); err != nil {
		return SendResult{}, err
	}
	return SendResult{ProviderMessageID: out.Data.VideoID, Status: "generating"}, nil
}

func (p *HeyGenProvider) SendBatch(ctx context.Context, items []SendParams) ([]SendResult, error) {
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

func (p *HeyGenProvider) GetStatus(ctx context.Context, providerMessageID string) (string, error) {
	var out struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := p.client.doJSON(ctx, http.MethodGet, "/v1/video_status.get?video_id="+providerMessageID, nil, &out); err != nil {
		return "", err
	}
	return out.Data.Status, nil
}

func (p *HeyGenProvider) VerifyWebhookSignature(r *http.Request, body []byte, secret string) error {
	return verifyHMACHeader(r, body, secret, "Signature", "heygen")
}

type heygenEvent struct {
	EventType string `json:"event_type"`
	EventData struct {
		VideoID    string `json:"video_id"`
		CallbackID string `json:"callback_id"`
	} `json:"event_data"`
	Timestamp int64 `json:"timestamp"`
}

func (p *HeyGenProvider) ParseWebhookEvent(payload []byte) ([]RawEvent, error) {
	var e heygenEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, apperrors.NewValidation("payload", "heygen webhook unparseable: "+err.Error())
	}
	if e.EventType == "" {
		return nil, apperrors.NewValidation("payload", "heygen webhook missing event_type")
	}
	enrollmentID, step := splitCallbackID(e.EventData.CallbackID)
	occurred := time.Now().UTC()
	if e.Timestamp > 0 {
		occurred = time.Unix(e.Timestamp, 0).UTC()
	}
	return []RawEvent{{
		Type:         e.EventType,
		EventID:      e.EventData.VideoID + ":" + e.EventType,
		EnrollmentID: enrollmentID,
		StepNumber:   step,
		OccurredAt:   occurred,
		Payload:      json.RawMessage(payload),
	}}, nil
}

func (p *HeyGenProvider) Capabilities() Capabilities {
	return Capabilities{Name: "heygen", Channel: "video", SupportsBatch: false, MaxBatchSize: 1}
}

func (p *HeyGenProvider) ValidateConfig() error {
	if p.cfg.APIKey == "" {
		return apperrors.NewValidation("VIDEO_API_KEY", "heygen requires an API key")
	}
	if p.cfg.WebhookSecret == "" {
		return apperrors.NewValidation("VIDEO_WEBHOOK_SECRET", "heygen requires a webhook signing secret")
	}
	return nil
}

// splitCallbackID parses the "enrollmentID:stepNumber" callback id both video
// vendors echo back.
func splitCallbackID(s string) (int, int) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			enrollmentID, _ := strconv.Atoi(s[:i])
			step, _ := strconv.Atoi(s[i+1:])
			return enrollmentID, step
		}
	}
	enrollmentID, _ := strconv.Atoi(s)
	return enrollmentID, 0
}

var _ VideoProvider = (*HeyGenProvider)(nil)
