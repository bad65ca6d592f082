package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/driftline/outreach-backend/internal/model"
	"github.com/driftline/outreach-backend/internal/queue"
	"github.com/driftline/outreach-backend/internal/repository"
)

const sweepBatchSize = 500

// Sweeper turns due enrollments into send jobs and recovers stale claims.
// Both run as cron entries so one clock drives all periodic maintenance.
type Sweeper struct {
	Queue          queue.Queue
	EnrollmentRepo repository.EnrollmentRepositoryInterface
	TemplateRepo   repository.TemplateRepositoryInterface
	InstanceRepo   repository.InstanceRepositoryInterface
	ClaimTimeout   time.Duration
}

// Start registers the maintenance entries and starts the cron runner. The
// returned cron is already running; callers stop it on shutdown.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) *cron.Cron {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := c.AddFunc(spec, func() { s.sweepDue(ctx) }); err != nil {
		log.Fatal().Err(err).Msg("register due-enrollment sweep")
	}
	if _, err := c.AddFunc(spec, func() { s.recoverStale(ctx) }); err != nil {
		log.Fatal().Err(err).Msg("register stale-claim recovery")
	}
	c.Start()
	log.Info().Dur("interval", interval).Msg("sweeper started")
	return c
}

// sweepDue enqueues the channel-appropriate send job for every due
// enrollment. The idempotency key makes repeated sweeps of a still-due
// enrollment a no-op instead of a duplicate job.
func (s *Sweeper) sweepDue(ctx context.Context) {
	due, err := s.EnrollmentRepo.ListDue(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("list due enrollments")
		return
	}
	for _, enrollment := range due {
		if err := s.enqueueStep(ctx, enrollment); err != nil {
			log.Error().Err(err).Int("enrollment_id", enrollment.ID).Msg("enqueue send step")
		}
	}
	if len(due) > 0 {
		log.Info().Int("count", len(due)).Msg("swept due enrollments")
	}
}

func (s *Sweeper) enqueueStep(ctx context.Context, enrollment *model.CampaignEnrollment) error {
	instance, err := s.InstanceRepo.GetByID(ctx, enrollment.InstanceID)
	if err != nil {
		return err
	}

	jobType, err := s.stepJobType(ctx, instance.TemplateID, enrollment.CurrentStep)
	if err != nil {
		return err
	}

	payload, _ := json.Marshal(model.SendStepPayload{
		EnrollmentID: enrollment.ID,
		StepNumber:   enrollment.CurrentStep,
	})
	key := fmt.Sprintf("send:%d:%d", enrollment.ID, enrollment.CurrentStep)
	_, err = s.Queue.Enqueue(ctx, jobType, payload,
		queue.WithIdempotencyKey(key),
		queue.WithPriority(5),
	)
	return err
}

// stepJobType resolves which channel owns a step number.
func (s *Sweeper) stepJobType(ctx context.Context, templateID, stepNumber int) (string, error) {
	emailStep, err := s.TemplateRepo.GetEmailStep(ctx, templateID, stepNumber)
	if err != nil {
		return "", err
	}
	if emailStep != nil {
		return model.JobTypeSendEmailStep, nil
	}
	liStep, err := s.TemplateRepo.GetLinkedInStep(ctx, templateID, stepNumber)
	if err != nil {
		return "", err
	}
	if liStep != nil {
		return model.JobTypeSendLinkedInStep, nil
	}
	return "", fmt.Errorf("template %d has no step %d", templateID, stepNumber)
}

func (s *Sweeper) recoverStale(ctx context.Context) {
	n, err := s.Queue.RecoverStale(ctx, s.ClaimTimeout)
	if err != nil {
		log.Error().Err(err).Msg("recover stale jobs")
		return
	}
	if n > 0 {
		log.Warn().Int("recovered", n).Msg("requeued stale processing jobs")
	}
}
