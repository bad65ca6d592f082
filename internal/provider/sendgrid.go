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

const sendgridDefaultBaseURL = "https://api.sendgrid.com"

// SendGridProvider sends email through the SendGrid v3 API. Enrollment id and
// step number ride along as custom_args and come back flattened into every
// webhook event.
type SendGridProvider struct {
	cfg    config.ProviderConfig
	client *apiClient
}

func NewSendGrid(cfg config.ProviderConfig, limiter ratelimit.Limiter) *SendGridProvider {
	base := cfg.BaseURL
	if base == "" {
		base = sendgridDefaultBaseURL
	}
	return &SendGridProvider{
		cfg: cfg,
		client: newAPIClient("sendgrid", base, limiter, map[string]string{
			"Authorization": "Bearer " + cfg.APIKey,
		}),
	}
}

func (p *SendGridProvider) Send(ctx context.Context, params SendParams) (SendResult, error) {
	body := map[string]any{
		"personalizations": []map[string]any{{
			"to": []map[string]string{{"email": params.Contact.Email, "name": params.Contact.FirstName + " " + params.Contact.LastName}},
			"custom_args": map[string]string{
				"enrollment_id": strconv.Itoa(params.EnrollmentID),
				"step_number":   strconv.Itoa(params.StepNumber),
			},
		}},
		"subject": params.Subject,
		"content": []map[string]string{{"type": "text/html", "value": params.Body}},
	}
	if err := p.client.doJSON(ctx, http.MethodPost, "/v3/mail/send", body, nil); err != nil {
		return SendResult{}, err
	}
	return SendResult{Status: "queued"}, nil
}

func (p *SendGridProvider) SendBatch(ctx context.Context, items []SendParams) ([]SendResult, error) {
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

func (p *SendGridProvider) GetStatus(ctx context.Context, providerMessageID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := p.client.doJSON(ctx, http.MethodGet, "/v3/messages/"+providerMessageID, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (p *SendGridProvider) VerifyWebhookSignature(r *http.Request, body []byte, secret string) error {
	return verifyTimestampedHMAC(r, body, secret,
		"X-Twilio-Email-Event-Webhook-Signature", "X-Twilio-Email-Event-Webhook-Timestamp", "sendgrid")
}

type sendgridEvent struct {
	Event        string `json:"event"`
	SGEventID    string `json:"sg_event_id"`
	Timestamp    int64  `json:"timestamp"`
	EnrollmentID string `json:"enrollment_id"`
	StepNumber   string `json:"step_number"`
}

// ParseWebhookEvent accepts SendGrid's batched JSON array of events.
func (p *SendGridProvider) ParseWebhookEvent(payload []byte) ([]RawEvent, error) {
	var batch []sendgridEvent
	if err := json.Unmarshal(payload, &batch); err != nil {
		return nil, apperrors.NewValidation("payload", "sendgrid webhook is not a JSON array: "+err.Error())
	}
	events := make([]RawEvent, 0, len(batch))
	for i, e := range batch {
		enrollmentID, _ := strconv.Atoi(e.EnrollmentID)
		step, _ := strconv.Atoi(e.StepNumber)
		raw, _ := json.Marshal(batch[i])
		events = append(events, RawEvent{
			Type:         e.Event,
			EventID:      e.SGEventID,
			EnrollmentID: enrollmentID,
			StepNumber:   step,
			OccurredAt:   time.Unix(e.Timestamp, 0).UTC(),
			Payload:      raw,
		})
	}
	return events, nil
}

func (p *SendGridProvider) Capabilities() Capabilities {
	return Capabilities{Name: "sendgrid", Channel: "email", SupportsBatch: true, MaxBatchSize: 1000}
}

func (p *SendGridProvider) ValidateConfig() error {
	if p.cfg.APIKey == "" {
		return apperrors.NewValidation("EMAIL_API_KEY", "sendgrid requires an API key")
	}
	if p.cfg.WebhookSecret == "" {
		return apperrors.NewValidation("EMAIL_WEBHOOK_SECRET", "sendgrid requires a webhook signing secret")
	}
	return nil
}

var _ EmailProvider = (*SendGridProvider)(nil)
