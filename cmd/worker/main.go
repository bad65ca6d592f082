package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/driftline/outreach-backend/internal/config"
	"github.com/driftline/outreach-backend/internal/db"
	"github.com/driftline/outreach-backend/internal/model"
	"github.com/driftline/outreach-backend/internal/provider"
	"github.com/driftline/outreach-backend/internal/queue"
	"github.com/driftline/outreach-backend/internal/ratelimit"
	"github.com/driftline/outreach-backend/internal/repository"
	"github.com/driftline/outreach-backend/internal/service"
	"github.com/driftline/outreach-backend/internal/worker"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer conn.Close()

	buckets, err := config.LoadBuckets(cfg.RateLimitsFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.RateLimitsFile).Msg("load rate limit buckets")
	}
	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		limiter = ratelimit.NewRedisLimiter(rdb, buckets)
	} else {
		log.Warn().Msg("REDIS_ADDR not set, using in-process rate limiter (single-process only)")
		limiter = ratelimit.NewLocalLimiter(buckets)
	}

	registry := provider.NewRegistry(cfg, limiter)
	jobQueue := queue.NewPostgresQueue(conn)

	templateRepo := &repository.TemplateRepository{DB: conn}
	instanceRepo := &repository.InstanceRepository{DB: conn}
	enrollmentRepo := &repository.EnrollmentRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}

	sender := &service.StepSender{
		TemplateRepo:   templateRepo,
		InstanceRepo:   instanceRepo,
		EnrollmentRepo: enrollmentRepo,
		ContactRepo:    contactRepo,
		Providers:      registry,
	}

	handlers := map[string]worker.Handler{
		model.JobTypeSendEmailStep:    service.EmailStepHandler{StepSender: sender},
		model.JobTypeSendLinkedInStep: service.LinkedInStepHandler{StepSender: sender},
		model.JobTypeGenerateVideo:    service.VideoGenerateHandler{StepSender: sender},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := &worker.Sweeper{
		Queue:          jobQueue,
		EnrollmentRepo: enrollmentRepo,
		TemplateRepo:   templateRepo,
		InstanceRepo:   instanceRepo,
		ClaimTimeout:   cfg.ClaimTimeout,
	}
	cronRunner := sweeper.Start(ctx, cfg.SweepInterval)
	defer cronRunner.Stop()

	workerID := fmt.Sprintf("worker-%s", uuid.NewString()[:8])
	pool := worker.NewPool(jobQueue, handlers, workerID, cfg.WorkerCount, cfg.PollInterval)
	pool.Run(ctx)

	log.Info().Msg("worker shut down")
}
