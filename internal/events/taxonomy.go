package events

// Canonical event taxonomy. Every vendor vocabulary maps onto these; nothing
// downstream of the normalizer sees vendor event names.
const (
	EmailSent         = "email.sent"
	EmailDelivered    = "email.delivered"
	EmailOpened       = "email.opened"
	EmailClicked      = "email.clicked"
	EmailReplied      = "email.replied"
	EmailBounced      = "email.bounced"
	EmailUnsubscribed = "email.unsubscribed"
	EmailSpamReported = "email.spam_reported"

	LinkedInProfileVisited     = "linkedin.profile_visited"
	LinkedInConnectionSent     = "linkedin.connection_sent"
	LinkedInConnectionAccepted = "linkedin.connection_accepted"
	LinkedInConnectionRejected = "linkedin.connection_rejected"
	LinkedInMessageSent        = "linkedin.message_sent"
	LinkedInMessageRead        = "linkedin.message_read"
	LinkedInMessageReplied     = "linkedin.message_replied"

	VideoGenerated        = "video.generated"
	VideoGenerationFailed = "video.generation_failed"
	VideoViewed           = "video.viewed"
	VideoCompleted        = "video.completed"
)

// CounterIncrements maps a canonical event type to the instance counters it
// bumps. Unknown types increment nothing.
func CounterIncrements(eventType string) map[string]int {
	switch eventType {
	case EmailSent, LinkedInMessageSent, LinkedInConnectionSent, VideoGenerated:
		return map[string]int{"sent_count": 1}
	case EmailDelivered:
		return map[string]int{"delivered_count": 1}
	case EmailOpened, LinkedInMessageRead, VideoViewed:
		return map[string]int{"opened_count": 1}
	case EmailClicked:
		return map[string]int{"clicked_count": 1}
	case EmailReplied, LinkedInMessageReplied:
		return map[string]int{"replied_count": 1}
	case EmailBounced:
		return map[string]int{"bounced_count": 1}
	default:
		return map[string]int{}
	}
}

// StopsSequence reports whether an event should halt further sends for the
// enrollment that received it.
func StopsSequence(eventType string) bool {
	switch eventType {
	case EmailReplied, EmailBounced, EmailUnsubscribed, EmailSpamReported,
		LinkedInMessageReplied, LinkedInConnectionRejected:
		return true
	}
	return false
}

// Unsubscribes reports whether an event ends the enrollment as unsubscribed
// rather than completed.
func Unsubscribes(eventType string) bool {
	return eventType == EmailUnsubscribed || eventType == EmailSpamReported
}
