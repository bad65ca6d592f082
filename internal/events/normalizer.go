package events

import (
	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/model"
	"github.com/driftline/outreach-backend/internal/provider"
)

// vendorVocab maps each vendor's event vocabulary onto the canonical
// taxonomy. Vendors that rename their events only ever touch this table.
var vendorVocab = map[string]map[string]string{
	"sendgrid": {
		"processed":   EmailSent,
		"delivered":   EmailDelivered,
		"open":        EmailOpened,
		"click":       EmailClicked,
		"inbound":     EmailReplied,
		"bounce":      EmailBounced,
		"dropped":     EmailBounced,
		"unsubscribe": EmailUnsubscribed,
		"spamreport":  EmailSpamReported,
	},
	"mailgun": {
		"accepted":     EmailSent,
		"delivered":    EmailDelivered,
		"opened":       EmailOpened,
		"clicked":      EmailClicked,
		"stored":       EmailReplied,
		"failed":       EmailBounced,
		"unsubscribed": EmailUnsubscribed,
		"complained":   EmailSpamReported,
	},
	"unipile": {
		"profile_visited":     LinkedInProfileVisited,
		"invitation_sent":     LinkedInConnectionSent,
		"new_relation":        LinkedInConnectionAccepted,
		"invitation_declined": LinkedInConnectionRejected,
		"message_sent":        LinkedInMessageSent,
		"message_read":        LinkedInMessageRead,
		"message_received":    LinkedInMessageReplied,
	},
	"phantombuster": {
		"visit_success":    LinkedInProfileVisited,
		"connect_sent":     LinkedInConnectionSent,
		"connect_accepted": LinkedInConnectionAccepted,
		"connect_declined": LinkedInConnectionRejected,
		"message_sent":     LinkedInMessageSent,
		"message_seen":     LinkedInMessageRead,
		"message_reply":    LinkedInMessageReplied,
	},
	"heygen": {
		"avatar_video.success": VideoGenerated,
		"avatar_video.fail":    VideoGenerationFailed,
		"video.play":           VideoViewed,
		"video.complete":       VideoCompleted,
	},
	"synthesia": {
		// Synthesia's "completed" means the render finished, not that the
		// recipient watched it.
		"video.completed":    VideoGenerated,
		"video.failed":       VideoGenerationFailed,
		"video.viewed":       VideoViewed,
		"video.watched_full": VideoCompleted,
	},
}

// Normalize maps one vendor event into a canonical CampaignEvent. Idempotency
// is not this layer's job: the storage unique constraint on provider_event_id
// makes a duplicate insert a no-op.
func Normalize(raw provider.RawEvent, providerName, channel string) (model.CampaignEvent, error) {
	vocab, ok := vendorVocab[providerName]
	if !ok {
		return model.CampaignEvent{}, apperrors.NewValidation("provider", "unknown provider "+providerName)
	}
	canonical, ok := vocab[raw.Type]
	if !ok {
		return model.CampaignEvent{}, apperrors.NewValidation("event", "unknown "+providerName+" event "+raw.Type)
	}
	if raw.EnrollmentID == 0 {
		return model.CampaignEvent{}, apperrors.NewValidation("enrollment_id", "webhook event carries no enrollment reference")
	}

	e := model.CampaignEvent{
		EnrollmentID: raw.EnrollmentID,
		EventType:    canonical,
		Channel:      channel,
		Provider:     providerName,
		StepNumber:   raw.StepNumber,
		OccurredAt:   raw.OccurredAt,
		RawPayload:   raw.Payload,
	}
	if raw.EventID != "" {
		id := providerName + ":" + raw.EventID
		e.ProviderEventID = &id
	}
	return e, nil
}
