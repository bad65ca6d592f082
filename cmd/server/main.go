package main

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/driftline/outreach-backend/internal/bus"
	"github.com/driftline/outreach-backend/internal/config"
	"github.com/driftline/outreach-backend/internal/controller"
	"github.com/driftline/outreach-backend/internal/db"
	"github.com/driftline/outreach-backend/internal/handler"
	"github.com/driftline/outreach-backend/internal/provider"
	"github.com/driftline/outreach-backend/internal/queue"
	"github.com/driftline/outreach-backend/internal/ratelimit"
	"github.com/driftline/outreach-backend/internal/repository"
	"github.com/driftline/outreach-backend/internal/service"
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
	if err := db.Migrate(conn); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

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

	var publisher bus.EventPublisher = bus.NopPublisher{}
	if cfg.AMQPURL != "" {
		p, err := bus.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsBusExchange)
		if err != nil {
			log.Fatal().Err(err).Msg("connect to AMQP")
		}
		defer p.Close()
		publisher = p
	}

	registry := provider.NewRegistry(cfg, limiter)
	jobQueue := queue.NewPostgresQueue(conn)

	templateRepo := &repository.TemplateRepository{DB: conn}
	instanceRepo := &repository.InstanceRepository{DB: conn}
	enrollmentRepo := &repository.EnrollmentRepository{DB: conn}
	eventRepo := &repository.EventRepository{DB: conn}

	campaignService := &service.CampaignService{
		TemplateRepo:   templateRepo,
		InstanceRepo:   instanceRepo,
		EnrollmentRepo: enrollmentRepo,
		EventRepo:      eventRepo,
	}
	webhookService := &service.WebhookService{
		Registry:       registry,
		EventRepo:      eventRepo,
		EnrollmentRepo: enrollmentRepo,
		Publisher:      publisher,
	}

	campaignController := &controller.CampaignController{CampaignService: campaignService}
	jobController := &controller.JobController{Queue: jobQueue}
	webhookHandler := &handler.WebhookHandler{WebhookService: webhookService}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/templates", campaignController.CreateTemplate)
	r.Get("/templates", campaignController.ListTemplates)
	r.Get("/templates/{id}", campaignController.GetTemplate)
	r.Put("/templates/{id}", campaignController.UpdateTemplate)
	r.Delete("/templates/{id}", campaignController.DeleteTemplate)

	r.Post("/instances", campaignController.CreateInstance)
	r.Get("/instances", campaignController.ListInstances)
	r.Get("/instances/{id}", campaignController.GetInstance)
	r.Patch("/instances/{id}/status", campaignController.UpdateInstanceStatus)
	r.Post("/instances/{id}/enrollments", campaignController.BulkEnroll)
	r.Get("/instances/{id}/performance", campaignController.GetPerformance)

	r.Get("/jobs/dead-letter", jobController.ListDeadLetters)
	r.Post("/jobs/{id}/replay", jobController.ReplayJob)
	r.Post("/jobs/{id}/cancel", jobController.CancelJob)

	r.Post("/webhooks/{channel}/{provider}", webhookHandler.Receive)

	log.Info().Str("port", cfg.Port).Msg("server listening")
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
