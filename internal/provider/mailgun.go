package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/config"
	"github.com/driftline/outreach-backend/internal/ratelimit"
)

const mailgunDefaultBaseURL = "https://api.mailgun.net"

type MailgunProvider struct {
	cfg    config.ProviderConfig
	client *apiClient
}

func NewMailgun(cfg config.ProviderConfig, limiter ratelimit.Limiter) *MailgunProvider {
	base := cfg.BaseURL
	if base == "" {
		base = mailgunDefaultBaseURL
	}
	return &MailgunProvider{
		cfg: cfg,
		client: newAPIClient("mailgun", base, limiter, map[string]string{
			"Authorization": "Bearer " + cfg.APIKey,
		}),
	}
}

func (p *MailgunProvider) Send(ctx context.Context, params SendParams) (SendResult, error) {
	body := map[string]any{
		"to":              params.Contact.Email,
		"subject":         params.Subject,
		"html":            params.Body,
		"v:enrollment_id": strconv.Itoa(params.EnrollmentID),
		"v:step_number":   strconv.Itoa(params.StepNumber),
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := p.client.doJSON(ctx, http.MethodPost, "/v3/messages", body, &out); err != nil {
		return SendResult{}, err
	}
	return SendResult{ProviderMessageID: out.ID, Status: "queued"}, nil
}

func (p *MailgunProvider) SendBatch(ctx context.Context, items []SendParams) ([]SendResult, error) {
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

func (p *MailgunProvider) GetStatus(ctx context.Context, providerMessageID string) (string, error) {
	var out struct {
		Message struct {
			Status string `json:"status"`
		} `json:"message"`
	}
	if err := p.client.doJSON(ctx, http.MethodGet, "/v3/events/"+providerMessageID, nil, &out); err != nil {
		return "", err
	}
	return out.Message.Status, nil
}

type mailgunWebhook struct {
	Signature struct {
		Timestamp string `json:"timestamp"`
		Token     string `json:"token"`
		Signature string `json:"signature"`
	} `json:"signature"`
	EventData mailgunEventData `json:"event-data"`
}

type mailgunEventData struct {
	Event        string  `json:"event"`
	ID           string  `json:"id"`
	Timestamp    float64 `json:"timestamp"`
	UserVariables struct {
		EnrollmentID string `json:"enrollment_id"`
		StepNumber   string `json:"step_number"`
	} `json:"user-variables"`
}

// VerifyWebhookSignature uses Mailgun's scheme: HMAC-SHA256 over
// timestamp+token from the payload's signature block.
func (p *MailgunProvider) VerifyWebhookSignature(_ *http.Request, body []byte, secret string) error {
	var hook mailgunWebhook
	if err := json.Unmarshal(body, &hook); err != nil || secret == "" {
		return apperrors.NewWebhookSignature("mailgun")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(hook.Signature.Timestamp + hook.Signature.Token))
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(hook.Signature.Signature), []byte(want)) {
		return apperrors.NewWebhookSignature("mailgun")
	}
	return nil
}

func (p *MailgunProvider) ParseWebhookEvent(payload []byte) ([]RawEvent, error) {
	var hook mailgunWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, apperrors.NewValidation("payload", "mailgun webhook unparseable: "+err.Error())
	}
	if hook.EventData.Event == "" {
		return nil, apperrors.NewValidation("payload", "mailgun webhook missing event-data.event")
	}
	enrollmentID, _ := strconv.Atoi(hook.EventData.UserVariables.EnrollmentID)
	step, _ := strconv.Atoi(hook.EventData.UserVariables.StepNumber)
	raw, _ := json.Marshal(hook.EventData)
	return []RawEvent{{
		Type:         hook.EventData.Event,
		EventID:      hook.EventData.ID,
		EnrollmentID: enrollmentID,
		StepNumber:   step,
		OccurredAt:   time.Unix(int64(hook.EventData.Timestamp), 0).UTC(),
		Payload:      raw,
	}}, nil
}

func (p *MailgunProvider) Capabilities() Capabilities {
	return Capabilities{Name: "mailgun", Channel: "email", SupportsBatch: true, MaxBatchSize: 1000}
}

func (p *MailgunProvider) ValidateConfig() error {
	if p.cfg.APIKey == "" {
		return apperrors.NewValidation("EMAIL_API_KEY", "mailgun requires an API key")
	}
	if p.cfg.WebhookSecret == "" {
		return apperrors.NewValidation("EMAIL_WEBHOOK_SECRET", "mailgun requires a webhook signing key")
	}
	return nil
}

var _ EmailProvider = (*MailgunProvider)(nil)
