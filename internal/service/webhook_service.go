package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/bus"
	"github.com/driftline/outreach-backend/internal/events"
	"github.com/driftline/outreach-backend/internal/model"
	"github.com/driftline/outreach-backend/internal/provider"
	"github.com/driftline/outreach-backend/internal/repository"
)

// ProviderResolver is the slice of the registry webhook ingestion needs.
type ProviderResolver interface {
	ByChannel(channel string) (provider.Provider, error)
	WebhookSecret(channel string) string
}

type WebhookService struct {
	Registry       ProviderResolver
	EventRepo      repository.EventRepositoryInterface
	EnrollmentRepo repository.EnrollmentRepositoryInterface
	Publisher      bus.EventPublisher
}

// IngestResult summarizes one webhook delivery.
type IngestResult struct {
	Processed  int `json:"processed"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// Ingest runs the full inbound pipeline: verify signature, parse, normalize,
// persist idempotently, bump instance counters, react to sequence-stopping
// events, publish. Vendor retries of the same event are a successful no-op.
func (s *WebhookService) Ingest(ctx context.Context, channel, providerName string, r *http.Request, body []byte) (*IngestResult, error) {
	p, err := s.Registry.ByChannel(channel)
	if err != nil {
		return nil, err
	}
	if p.Capabilities().Name != providerName {
		return nil, apperrors.NewNotFound("webhook route", channel+"/"+providerName)
	}

	if err := p.VerifyWebhookSignature(r, body, s.Registry.WebhookSecret(channel)); err != nil {
		log.Warn().
			Str("provider", providerName).
			Str("channel", channel).
			Str("remote_addr", r.RemoteAddr).
			Msg("webhook signature verification failed")
		return nil, err
	}

	rawEvents, err := p.ParseWebhookEvent(body)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{}
	for _, raw := range rawEvents {
		if err := s.ingestOne(ctx, raw, providerName, channel, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (s *WebhookService) ingestOne(ctx context.Context, raw provider.RawEvent, providerName, channel string, result *IngestResult) error {
	event, err := events.Normalize(raw, providerName, channel)
	if err != nil {
		// A batch can mix known and unknown vendor events; unknown ones are
		// logged and skipped rather than failing the whole delivery.
		var ve *apperrors.ValidationError
		if errors.As(err, &ve) {
			log.Debug().Str("provider", providerName).Str("event", raw.Type).Msg("skipping unmapped webhook event")
			result.Skipped++
			return nil
		}
		return err
	}

	enrollment, err := s.EnrollmentRepo.GetByID(ctx, event.EnrollmentID)
	if err != nil {
		var nf *apperrors.NotFoundError
		if errors.As(err, &nf) {
			log.Warn().Int("enrollment_id", event.EnrollmentID).Str("provider", providerName).Msg("webhook references unknown enrollment")
			result.Skipped++
			return nil
		}
		return err
	}

	// Event row, counter bumps and the enrollment stop commit or roll back
	// together; a partially applied delivery cannot be stranded behind the
	// duplicate check.
	stopStatus := ""
	if events.StopsSequence(event.EventType) {
		stopStatus = model.EnrollmentCompleted
		if events.Unsubscribes(event.EventType) {
			stopStatus = model.EnrollmentUnsubscribed
		}
	}
	inserted, err := s.EventRepo.InsertWithEffects(ctx, &event, enrollment.InstanceID,
		events.CounterIncrements(event.EventType), stopStatus)
	if err != nil {
		return err
	}
	if !inserted {
		result.Duplicates++
		return nil
	}

	if err := s.Publisher.PublishEvent(&event); err != nil {
		log.Error().Err(err).Str("event_type", event.EventType).Msg("failed to publish event to bus")
	}

	result.Processed++
	return nil
}
