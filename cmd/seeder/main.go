package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/driftline/outreach-backend/internal/config"
	"github.com/driftline/outreach-backend/internal/db"
	"github.com/driftline/outreach-backend/internal/model"
	"github.com/driftline/outreach-backend/internal/repository"
)

// Seeds a demo multi-channel template and a handful of contacts so the API
// and worker can be exercised against a fresh database.
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

	ctx := context.Background()
	contactRepo := &repository.ContactRepository{DB: conn}
	templateRepo := &repository.TemplateRepository{DB: conn}

	contacts := []*model.Contact{
		{Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace", Company: "Analytical Engines", Title: "CTO", LinkedInURL: "https://linkedin.com/in/ada"},
		{Email: "grace@example.com", FirstName: "Grace", LastName: "Hopper", Company: "Compilers Inc", Title: "VP Engineering", LinkedInURL: "https://linkedin.com/in/grace"},
		{Email: "alan@example.com", FirstName: "Alan", LastName: "Turing", Company: "Enigma Labs", Title: "Head of Research"},
	}
	for _, c := range contacts {
		if err := contactRepo.Upsert(ctx, c); err != nil {
			log.Fatal().Err(err).Str("email", c.Email).Msg("seed contact")
		}
		log.Info().Int("id", c.ID).Str("email", c.Email).Msg("seeded contact")
	}

	template := &model.CampaignTemplate{
		Name:     "Founder outreach (demo)",
		Type:     model.TemplateTypeMultiChannel,
		PathType: "linear",
		Settings: json.RawMessage(`{"timezone":"UTC"}`),
		EmailSteps: []model.EmailSequenceStep{
			{StepNumber: 1, Subject: "Quick question, {first_name}", Body: "Hi {first_name}, saw {company} is growing fast...", DelayHours: 0},
			{StepNumber: 3, Subject: "Re: quick question", Body: "Bumping this up, {first_name}.", DelayHours: 72},
		},
		LinkedInSteps: []model.LinkedInSequenceStep{
			{StepNumber: 2, Action: model.LinkedInActionConnect, Message: "Hi {first_name}, would love to connect.", DelayHours: 24},
		},
	}
	if err := templateRepo.Create(ctx, template); err != nil {
		log.Fatal().Err(err).Msg("seed template")
	}
	log.Info().Int("id", template.ID).Str("name", template.Name).Msg("seeded template")

	log.Info().Msg("seeding complete")
}
