package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/model"
	"github.com/driftline/outreach-backend/internal/provider"
	"github.com/driftline/outreach-backend/internal/repository"
)

// ProviderSource is the slice of the registry job handlers need.
type ProviderSource interface {
	Email() (provider.EmailProvider, error)
	LinkedIn() (provider.LinkedInProvider, error)
	Video() (provider.VideoProvider, error)
}

// StepSender executes send-step jobs. Engagement events are never written
// here: delivery and engagement arrive exclusively through provider webhooks,
// so a send that the vendor drops silently never inflates counters.
type StepSender struct {
	TemplateRepo   repository.TemplateRepositoryInterface
	InstanceRepo   repository.InstanceRepositoryInterface
	EnrollmentRepo repository.EnrollmentRepositoryInterface
	ContactRepo    repository.ContactRepositoryInterface
	Providers      ProviderSource
}

// stepContext is everything loaded and validated before a provider call.
type stepContext struct {
	enrollment *model.CampaignEnrollment
	instance   *model.CampaignInstance
	template   *model.CampaignTemplate
	contact    *model.Contact
}

// loadStep resolves the enrollment chain for a send job. A nil return with no
// error means the job is stale (enrollment stopped, instance paused, or the
// step already advanced) and must be skipped without a provider call.
func (s *StepSender) loadStep(ctx context.Context, enrollmentID, stepNumber int) (*stepContext, error) {
	enrollment, err := s.EnrollmentRepo.GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != model.EnrollmentActive || enrollment.CurrentStep != stepNumber {
		log.Info().
			Int("enrollment_id", enrollmentID).
			Str("status", enrollment.Status).
			Int("current_step", enrollment.CurrentStep).
			Int("job_step", stepNumber).
			Msg("skipping stale send job")
		return nil, nil
	}

	instance, err := s.InstanceRepo.GetByID(ctx, enrollment.InstanceID)
	if err != nil {
		return nil, err
	}
	if instance.Status != model.InstanceActive {
		log.Info().Int("instance_id", instance.ID).Str("status", instance.Status).Msg("skipping send for inactive instance")
		return nil, nil
	}

	template, err := s.TemplateRepo.GetByID(ctx, instance.TemplateID)
	if err != nil {
		return nil, err
	}
	contact, err := s.ContactRepo.GetByID(ctx, enrollment.ContactID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, apperrors.NewNotFound("contact", enrollment.ContactID)
	}
	return &stepContext{enrollment: enrollment, instance: instance, template: template, contact: contact}, nil
}

// advance moves the enrollment past the step it just sent. When no later step
// exists the enrollment completes.
func (s *StepSender) advance(ctx context.Context, sc *stepContext) error {
	next, delayHours, ok := nextStep(sc.template, sc.enrollment.CurrentStep)
	if !ok {
		return s.EnrollmentRepo.AdvanceStep(ctx, sc.enrollment.ID, sc.enrollment.CurrentStep+1, nil)
	}
	due := time.Now().Add(time.Duration(delayHours) * time.Hour)
	return s.EnrollmentRepo.AdvanceStep(ctx, sc.enrollment.ID, next, &due)
}

// nextStep finds the lowest step number above current across both channels.
func nextStep(t *model.CampaignTemplate, current int) (stepNumber, delayHours int, ok bool) {
	best := 0
	for _, s := range t.EmailSteps {
		if s.StepNumber > current && (best == 0 || s.StepNumber < best) {
			best, delayHours = s.StepNumber, s.DelayHours
		}
	}
	for _, s := range t.LinkedInSteps {
		if s.StepNumber > current && (best == 0 || s.StepNumber < best) {
			best, delayHours = s.StepNumber, s.DelayHours
		}
	}
	return best, delayHours, best != 0
}

// EmailStepHandler sends one email sequence step.
type EmailStepHandler struct {
	*StepSender
}

func (h EmailStepHandler) Handle(ctx context.Context, payload json.RawMessage) error {
	var p model.SendStepPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperrors.NewValidation("payload", "bad send step payload: "+err.Error())
	}
	sc, err := h.loadStep(ctx, p.EnrollmentID, p.StepNumber)
	if err != nil || sc == nil {
		return err
	}

	step, err := h.TemplateRepo.GetEmailStep(ctx, sc.template.ID, p.StepNumber)
	if err != nil {
		return err
	}
	if step == nil {
		return apperrors.NewNotFound("email step", fmt.Sprintf("%d/%d", sc.template.ID, p.StepNumber))
	}

	emailProvider, err := h.Providers.Email()
	if err != nil {
		return err
	}
	result, err := emailProvider.Send(ctx, provider.SendParams{
		EnrollmentID: sc.enrollment.ID,
		StepNumber:   p.StepNumber,
		Contact:      *sc.contact,
		Subject:      RenderTemplate(step.Subject, sc.contact),
		Body:         RenderTemplate(step.Body, sc.contact),
	})
	if err != nil {
		return err
	}
	log.Info().
		Int("enrollment_id", sc.enrollment.ID).
		Int("step", p.StepNumber).
		Str("provider_message_id", result.ProviderMessageID).
		Msg("email step sent")

	return h.advance(ctx, sc)
}

// LinkedInStepHandler performs one LinkedIn sequence action.
type LinkedInStepHandler struct {
	*StepSender
}

func (h LinkedInStepHandler) Handle(ctx context.Context, payload json.RawMessage) error {
	var p model.SendStepPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperrors.NewValidation("payload", "bad send step payload: "+err.Error())
	}
	sc, err := h.loadStep(ctx, p.EnrollmentID, p.StepNumber)
	if err != nil || sc == nil {
		return err
	}

	step, err := h.TemplateRepo.GetLinkedInStep(ctx, sc.template.ID, p.StepNumber)
	if err != nil {
		return err
	}
	if step == nil {
		return apperrors.NewNotFound("linkedin step", fmt.Sprintf("%d/%d", sc.template.ID, p.StepNumber))
	}
	if sc.contact.LinkedInURL == "" {
		// No profile to act on; skip the step rather than burn retries.
		log.Warn().Int("contact_id", sc.contact.ID).Msg("contact has no linkedin url, skipping step")
		return h.advance(ctx, sc)
	}

	linkedinProvider, err := h.Providers.LinkedIn()
	if err != nil {
		return err
	}
	result, err := linkedinProvider.Send(ctx, provider.SendParams{
		EnrollmentID: sc.enrollment.ID,
		StepNumber:   p.StepNumber,
		Contact:      *sc.contact,
		Action:       step.Action,
		Body:         RenderTemplate(step.Message, sc.contact),
	})
	if err != nil {
		return err
	}
	log.Info().
		Int("enrollment_id", sc.enrollment.ID).
		Int("step", p.StepNumber).
		Str("action", step.Action).
		Str("provider_message_id", result.ProviderMessageID).
		Msg("linkedin step executed")

	return h.advance(ctx, sc)
}

// VideoGenerateHandler starts an AI video render for an enrollment. The
// render outcome arrives later as a provider webhook; the job only covers
// kicking off generation.
type VideoGenerateHandler struct {
	*StepSender
}

func (h VideoGenerateHandler) Handle(ctx context.Context, payload json.RawMessage) error {
	var p model.GenerateVideoPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperrors.NewValidation("payload", "bad video payload: "+err.Error())
	}
	enrollment, err := h.EnrollmentRepo.GetByID(ctx, p.EnrollmentID)
	if err != nil {
		return err
	}
	if enrollment.Status != model.EnrollmentActive {
		log.Info().Int("enrollment_id", p.EnrollmentID).Str("status", enrollment.Status).Msg("skipping video job for stopped enrollment")
		return nil
	}
	contact, err := h.ContactRepo.GetByID(ctx, enrollment.ContactID)
	if err != nil {
		return err
	}
	if contact == nil {
		return apperrors.NewNotFound("contact", enrollment.ContactID)
	}

	videoProvider, err := h.Providers.Video()
	if err != nil {
		return err
	}
	result, err := videoProvider.Send(ctx, provider.SendParams{
		EnrollmentID: enrollment.ID,
		StepNumber:   p.StepNumber,
		Contact:      *contact,
		Script:       RenderTemplate(p.Script, contact),
	})
	if err != nil {
		return err
	}
	log.Info().
		Int("enrollment_id", enrollment.ID).
		Str("video_id", result.ProviderMessageID).
		Msg("video generation started")
	return nil
}
