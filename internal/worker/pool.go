package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftline/outreach-backend/internal/queue"
)

// Handler processes one job payload. Returning an error sends the job through
// the retry/backoff/dead-letter path.
type Handler interface {
	Handle(ctx context.Context, payload json.RawMessage) error
}

// Pool polls the queue on a fixed interval with a bounded number of
// concurrent executors. Claim atomicity lives in the queue; the pool only
// schedules.
type Pool struct {
	queue     queue.Queue
	handlers  map[string]Handler
	workerID  string
	sem       chan struct{}
	pollEvery time.Duration
}

func NewPool(q queue.Queue, handlers map[string]Handler, workerID string, size int, pollEvery time.Duration) *Pool {
	return &Pool{
		queue:     q,
		handlers:  handlers,
		workerID:  workerID,
		sem:       make(chan struct{}, size),
		pollEvery: pollEvery,
	}
}

func (p *Pool) Run(ctx context.Context) {
	t := time.NewTicker(p.pollEvery)
	defer t.Stop()

	log.Info().Str("worker_id", p.workerID).Dur("poll", p.pollEvery).Msg("worker pool started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.drain(ctx)
		}
	}
}

// drain claims until the queue is empty or all executor slots are busy.
func (p *Pool) drain(ctx context.Context) {
	for {
		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		job, err := p.queue.ClaimNext(ctx, p.workerID)
		if err != nil {
			<-p.sem
			if !errors.Is(err, queue.ErrEmpty) {
				log.Error().Err(err).Msg("claim failed")
			}
			return
		}

		go func() {
			defer func() { <-p.sem }()
			p.process(ctx, job.ID, job.Type, job.Payload)
		}()
	}
}

func (p *Pool) process(ctx context.Context, jobID, jobType string, payload json.RawMessage) {
	h, ok := p.handlers[jobType]
	if !ok {
		if err := p.queue.Fail(ctx, jobID, "no handler for job type "+jobType); err != nil {
			log.Error().Err(err).Str("job_id", jobID).Msg("fail bookkeeping failed")
		}
		return
	}

	if err := h.Handle(ctx, payload); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Str("type", jobType).Msg("job failed")
		if ferr := p.queue.Fail(ctx, jobID, err.Error()); ferr != nil {
			log.Error().Err(ferr).Str("job_id", jobID).Msg("fail bookkeeping failed")
		}
		return
	}

	if err := p.queue.Complete(ctx, jobID, json.RawMessage(fmt.Sprintf(`{"completed_by":%q}`, p.workerID))); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("complete bookkeeping failed")
	}
}
