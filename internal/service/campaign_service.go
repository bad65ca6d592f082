package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/events"
	"github.com/driftline/outreach-backend/internal/model"
	"github.com/driftline/outreach-backend/internal/repository"
)

type CampaignService struct {
	TemplateRepo   repository.TemplateRepositoryInterface
	InstanceRepo   repository.InstanceRepositoryInterface
	EnrollmentRepo repository.EnrollmentRepositoryInterface
	EventRepo      repository.EventRepositoryInterface
}

// ====================== Templates ======================

func (s *CampaignService) CreateTemplate(ctx context.Context, t *model.CampaignTemplate) (*model.CampaignTemplate, error) {
	if t.Name == "" {
		return nil, apperrors.NewValidation("name", "template name is required")
	}
	switch t.Type {
	case model.TemplateTypeEmail, model.TemplateTypeLinkedIn, model.TemplateTypeMultiChannel:
	default:
		return nil, apperrors.NewValidation("type", "unknown template type "+t.Type)
	}
	if t.StepCount() == 0 {
		return nil, apperrors.NewValidation("steps", "template needs at least one sequence step")
	}
	if t.Type == model.TemplateTypeEmail && len(t.LinkedInSteps) > 0 {
		return nil, apperrors.NewValidation("linkedin_steps", "email template cannot carry linkedin steps")
	}
	if t.Type == model.TemplateTypeLinkedIn && len(t.EmailSteps) > 0 {
		return nil, apperrors.NewValidation("email_steps", "linkedin template cannot carry email steps")
	}
	if err := validateStepNumbers(t); err != nil {
		return nil, err
	}
	if err := s.TemplateRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// validateStepNumbers requires step numbers to be unique and positive across
// both channels; a multi_channel sequence interleaves on the shared numbering.
func validateStepNumbers(t *model.CampaignTemplate) error {
	seen := map[int]bool{}
	check := func(n int) error {
		if n < 1 {
			return apperrors.NewValidation("step_number", "step numbers start at 1")
		}
		if seen[n] {
			return apperrors.NewValidation("step_number", "duplicate step number")
		}
		seen[n] = true
		return nil
	}
	for _, step := range t.EmailSteps {
		if err := check(step.StepNumber); err != nil {
			return err
		}
	}
	for _, step := range t.LinkedInSteps {
		if err := check(step.StepNumber); err != nil {
			return err
		}
	}
	return nil
}

func (s *CampaignService) GetTemplate(ctx context.Context, id int) (*model.CampaignTemplate, error) {
	return s.TemplateRepo.GetByID(ctx, id)
}

func (s *CampaignService) ListTemplates(ctx context.Context, page, pageSize int, templateType string, activeOnly bool) ([]*model.CampaignTemplate, map[string]int, error) {
	page, pageSize = clampPage(page, pageSize)
	offset := (page - 1) * pageSize
	templates, total, err := s.TemplateRepo.List(ctx, offset, pageSize, templateType, activeOnly)
	if err != nil {
		return nil, nil, err
	}
	return templates, pagination(page, pageSize, total), nil
}

func (s *CampaignService) UpdateTemplate(ctx context.Context, t *model.CampaignTemplate) error {
	if t.Name == "" {
		return apperrors.NewValidation("name", "template name is required")
	}
	return s.TemplateRepo.Update(ctx, t)
}

// DeleteTemplate soft-deletes. The repository holds the row lock for the
// whole count-check-then-deactivate sequence.
func (s *CampaignService) DeleteTemplate(ctx context.Context, id int) error {
	return s.TemplateRepo.DeactivateIfUnused(ctx, id)
}

// ====================== Instances ======================

func (s *CampaignService) CreateInstance(ctx context.Context, templateID int, name string, providerConfig []byte) (*model.CampaignInstance, error) {
	if name == "" {
		return nil, apperrors.NewValidation("name", "instance name is required")
	}
	inst := &model.CampaignInstance{
		TemplateID:     templateID,
		Name:           name,
		ProviderConfig: providerConfig,
	}
	if err := s.InstanceRepo.CreateFromTemplate(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *CampaignService) GetInstance(ctx context.Context, id int) (*model.CampaignInstance, error) {
	return s.InstanceRepo.GetByID(ctx, id)
}

func (s *CampaignService) ListInstances(ctx context.Context, page, pageSize int, status string) ([]*model.CampaignInstance, map[string]int, error) {
	page, pageSize = clampPage(page, pageSize)
	offset := (page - 1) * pageSize
	instances, total, err := s.InstanceRepo.List(ctx, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}
	return instances, pagination(page, pageSize, total), nil
}

func (s *CampaignService) UpdateInstanceStatus(ctx context.Context, id int, newStatus string) (*model.CampaignInstance, error) {
	if err := s.InstanceRepo.UpdateStatus(ctx, id, newStatus); err != nil {
		return nil, err
	}
	return s.InstanceRepo.GetByID(ctx, id)
}

// ====================== Enrollment ======================

// BulkEnroll enrolls contacts into an instance. Duplicates in the input and
// contacts already enrolled are skipped, not errors. Step one becomes due
// immediately; the sweeper picks it up.
func (s *CampaignService) BulkEnroll(ctx context.Context, instanceID int, contactIDs []int) (int, int, error) {
	if len(contactIDs) == 0 {
		return 0, 0, apperrors.NewValidation("contact_ids", "at least one contact id is required")
	}
	unique := dedupeInts(contactIDs)
	inserted, err := s.EnrollmentRepo.BulkEnroll(ctx, instanceID, unique, time.Now())
	if err != nil {
		return 0, 0, err
	}
	skipped := len(unique) - inserted
	log.Info().Int("instance_id", instanceID).Int("enrolled", inserted).Int("skipped", skipped).Msg("bulk enroll")
	return inserted, skipped, nil
}

// ====================== Analytics ======================

type StepPerformance struct {
	StepNumber int            `json:"step_number"`
	Counts     map[string]int `json:"counts"`
}

type Performance struct {
	InstanceID int                `json:"instance_id"`
	Funnel     map[string]int     `json:"funnel"`
	Rates      map[string]float64 `json:"rates"`
	Steps      []StepPerformance  `json:"steps"`
}

// GetPerformance computes the funnel from grouped event counts. Events are
// aggregated in SQL; nothing here walks the event history row by row.
func (s *CampaignService) GetPerformance(ctx context.Context, instanceID int) (*Performance, error) {
	inst, err := s.InstanceRepo.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	byType, err := s.EventRepo.CountsByType(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	funnel := map[string]int{
		"enrolled":  inst.EnrolledCount,
		"sent":      0,
		"delivered": 0,
		"opened":    0,
		"clicked":   0,
		"replied":   0,
		"bounced":   0,
	}
	for eventType, count := range byType {
		for counter := range events.CounterIncrements(eventType) {
			stage := counterToStage(counter)
			if stage != "" {
				funnel[stage] += count
			}
		}
	}

	rates := map[string]float64{}
	if funnel["sent"] > 0 {
		rates["open_rate"] = ratio(funnel["opened"], funnel["sent"])
		rates["click_rate"] = ratio(funnel["clicked"], funnel["sent"])
		rates["reply_rate"] = ratio(funnel["replied"], funnel["sent"])
		rates["bounce_rate"] = ratio(funnel["bounced"], funnel["sent"])
	}

	byStep, err := s.EventRepo.CountsByStep(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	steps := make([]StepPerformance, 0, len(byStep))
	for _, sc := range byStep {
		steps = append(steps, StepPerformance{StepNumber: sc.StepNumber, Counts: sc.Counts})
	}

	return &Performance{InstanceID: instanceID, Funnel: funnel, Rates: rates, Steps: steps}, nil
}

func counterToStage(counter string) string {
	switch counter {
	case "sent_count":
		return "sent"
	case "delivered_count":
		return "delivered"
	case "opened_count":
		return "opened"
	case "clicked_count":
		return "clicked"
	case "replied_count":
		return "replied"
	case "bounced_count":
		return "bounced"
	}
	return ""
}

func ratio(part, whole int) float64 {
	return float64(part) / float64(whole) * 100
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func pagination(page, pageSize, total int) map[string]int {
	return map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": (total + pageSize - 1) / pageSize,
	}
}

func dedupeInts(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
