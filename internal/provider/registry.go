package provider

import (
	"fmt"
	"sync"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/config"
	"github.com/driftline/outreach-backend/internal/ratelimit"
)

// Registry resolves the active vendor per capability from configuration.
// Construction is lazy and validated once; swapping vendors is a config
// change, never a code change in callers.
type Registry struct {
	cfg     config.Config
	limiter ratelimit.Limiter

	mu       sync.Mutex
	email    EmailProvider
	linkedin LinkedInProvider
	video    VideoProvider
}

func NewRegistry(cfg config.Config, limiter ratelimit.Limiter) *Registry {
	return &Registry{cfg: cfg, limiter: limiter}
}

func (r *Registry) Email() (EmailProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.email != nil {
		return r.email, nil
	}
	var p EmailProvider
	switch r.cfg.Email.Name {
	case "sendgrid":
		p = NewSendGrid(r.cfg.Email, r.limiter)
	case "mailgun":
		p = NewMailgun(r.cfg.Email, r.limiter)
	default:
		return nil, apperrors.NewValidation("EMAIL_PROVIDER", "unknown email provider "+r.cfg.Email.Name)
	}
	if err := p.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("email provider %s: %w", r.cfg.Email.Name, err)
	}
	r.email = p
	return p, nil
}

func (r *Registry) LinkedIn() (LinkedInProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.linkedin != nil {
		return r.linkedin, nil
	}
	var p LinkedInProvider
	switch r.cfg.LinkedIn.Name {
	case "unipile":
		p = NewUnipile(r.cfg.LinkedIn, r.limiter)
	case "phantombuster":
		p = NewPhantomBuster(r.cfg.LinkedIn, r.limiter)
	default:
		return nil, apperrors.NewValidation("LINKEDIN_PROVIDER", "unknown linkedin provider "+r.cfg.LinkedIn.Name)
	}
	if err := p.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("linkedin provider %s: %w", r.cfg.LinkedIn.Name, err)
	}
	r.linkedin = p
	return p, nil
}

func (r *Registry) Video() (VideoProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.video != nil {
		return r.video, nil
	}
	var p VideoProvider
	switch r.cfg.Video.Name {
	case "heygen":
		p = NewHeyGen(r.cfg.Video, r.limiter)
	case "synthesia":
		p = NewSynthesia(r.cfg.Video, r.limiter)
	default:
		return nil, apperrors.NewValidation("VIDEO_PROVIDER", "unknown video provider "+r.cfg.Video.Name)
	}
	if err := p.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("video provider %s: %w", r.cfg.Video.Name, err)
	}
	r.video = p
	return p, nil
}

// ByChannel resolves the provider handling a channel, for webhook routing.
func (r *Registry) ByChannel(channel string) (Provider, error) {
	switch channel {
	case "email":
		return r.Email()
	case "linkedin":
		return r.LinkedIn()
	case "video":
		return r.Video()
	default:
		return nil, apperrors.NewValidation("channel", "unknown channel "+channel)
	}
}

// WebhookSecret returns the signing secret configured for a channel.
func (r *Registry) WebhookSecret(channel string) string {
	switch channel {
	case "email":
		return r.cfg.Email.WebhookSecret
	case "linkedin":
		return r.cfg.LinkedIn.WebhookSecret
	case "video":
		return r.cfg.Video.WebhookSecret
	default:
		return ""
	}
}
