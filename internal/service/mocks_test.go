package service

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/model"
	"github.com/driftline/outreach-backend/internal/provider"
	"github.com/driftline/outreach-backend/internal/repository"
)

// In-memory repository fakes shared by the service tests.

type mockTemplateRepo struct {
	templates map[int]*model.CampaignTemplate
	nextID    int
	// active instance counts per template, for DeactivateIfUnused
	activeInstances map[int]int
}

func newMockTemplateRepo() *mockTemplateRepo {
	return &mockTemplateRepo{templates: map[int]*model.CampaignTemplate{}, nextID: 1, activeInstances: map[int]int{}}
}

func (m *mockTemplateRepo) Create(_ context.Context, t *model.CampaignTemplate) error {
	t.ID = m.nextID
	m.nextID++
	t.IsActive = true
	m.templates[t.ID] = t
	return nil
}

func (m *mockTemplateRepo) GetByID(_ context.Context, id int) (*model.CampaignTemplate, error) {
	t, ok := m.templates[id]
	if !ok {
		return nil, apperrors.NewNotFound("template", id)
	}
	return t, nil
}

func (m *mockTemplateRepo) List(_ context.Context, offset, limit int, templateType string, activeOnly bool) ([]*model.CampaignTemplate, int, error) {
	ids := make([]int, 0, len(m.templates))
	for id := range m.templates {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var all []*model.CampaignTemplate
	for _, id := range ids {
		t := m.templates[id]
		if templateType != "" && t.Type != templateType {
			continue
		}
		if activeOnly && !t.IsActive {
			continue
		}
		all = append(all, t)
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockTemplateRepo) Update(_ context.Context, t *model.CampaignTemplate) error {
	existing, ok := m.templates[t.ID]
	if !ok {
		return apperrors.NewNotFound("template", t.ID)
	}
	existing.Name = t.Name
	existing.PathType = t.PathType
	existing.Settings = t.Settings
	return nil
}

func (m *mockTemplateRepo) DeactivateIfUnused(_ context.Context, id int) error {
	t, ok := m.templates[id]
	if !ok {
		return apperrors.NewNotFound("template", id)
	}
	if m.activeInstances[id] > 0 {
		return apperrors.NewConflict("template has active campaign instances")
	}
	t.IsActive = false
	return nil
}

func (m *mockTemplateRepo) GetEmailStep(_ context.Context, templateID, stepNumber int) (*model.EmailSequenceStep, error) {
	t, ok := m.templates[templateID]
	if !ok {
		return nil, apperrors.NewNotFound("template", templateID)
	}
	for i := range t.EmailSteps {
		if t.EmailSteps[i].StepNumber == stepNumber {
			return &t.EmailSteps[i], nil
		}
	}
	return nil, nil
}

func (m *mockTemplateRepo) GetLinkedInStep(_ context.Context, templateID, stepNumber int) (*model.LinkedInSequenceStep, error) {
	t, ok := m.templates[templateID]
	if !ok {
		return nil, apperrors.NewNotFound("template", templateID)
	}
	for i := range t.LinkedInSteps {
		if t.LinkedInSteps[i].StepNumber == stepNumber {
			return &t.LinkedInSteps[i], nil
		}
	}
	return nil, nil
}

type mockInstanceRepo struct {
	instances map[int]*model.CampaignInstance
	nextID    int
	counters  map[int]map[string]int
}

func newMockInstanceRepo() *mockInstanceRepo {
	return &mockInstanceRepo{instances: map[int]*model.CampaignInstance{}, nextID: 1, counters: map[int]map[string]int{}}
}

func (m *mockInstanceRepo) CreateFromTemplate(_ context.Context, inst *model.CampaignInstance) error {
	inst.ID = m.nextID
	m.nextID++
	inst.Status = model.InstanceDraft
	m.instances[inst.ID] = inst
	return nil
}

func (m *mockInstanceRepo) GetByID(_ context.Context, id int) (*model.CampaignInstance, error) {
	inst, ok := m.instances[id]
	if !ok {
		return nil, apperrors.NewNotFound("campaign instance", id)
	}
	return inst, nil
}

func (m *mockInstanceRepo) List(_ context.Context, offset, limit int, status string) ([]*model.CampaignInstance, int, error) {
	ids := make([]int, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var all []*model.CampaignInstance
	for _, id := range ids {
		if status != "" && m.instances[id].Status != status {
			continue
		}
		all = append(all, m.instances[id])
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockInstanceRepo) UpdateStatus(_ context.Context, id int, newStatus string) error {
	inst, ok := m.instances[id]
	if !ok {
		return apperrors.NewNotFound("campaign instance", id)
	}
	if !model.CanTransition(inst.Status, newStatus) {
		return apperrors.NewConflict("cannot transition from " + inst.Status + " to " + newStatus)
	}
	inst.Status = newStatus
	return nil
}

func (m *mockInstanceRepo) ApplyCounterIncrements(_ context.Context, id int, increments map[string]int) error {
	if _, ok := m.instances[id]; !ok {
		return apperrors.NewNotFound("campaign instance", id)
	}
	if m.counters[id] == nil {
		m.counters[id] = map[string]int{}
	}
	for col, by := range increments {
		m.counters[id][col] += by
	}
	return nil
}

type mockEnrollmentRepo struct {
	enrollments map[int]*model.CampaignEnrollment
	nextID      int
	enrolledSet map[[2]int]bool // instanceID, contactID
}

func newMockEnrollmentRepo() *mockEnrollmentRepo {
	return &mockEnrollmentRepo{enrollments: map[int]*model.CampaignEnrollment{}, nextID: 1, enrolledSet: map[[2]int]bool{}}
}

func (m *mockEnrollmentRepo) BulkEnroll(_ context.Context, instanceID int, contactIDs []int, nextActionAt time.Time) (int, error) {
	inserted := 0
	for _, cid := range contactIDs {
		key := [2]int{instanceID, cid}
		if m.enrolledSet[key] {
			continue
		}
		m.enrolledSet[key] = true
		due := nextActionAt
		m.enrollments[m.nextID] = &model.CampaignEnrollment{
			ID:           m.nextID,
			InstanceID:   instanceID,
			ContactID:    cid,
			Status:       model.EnrollmentActive,
			CurrentStep:  1,
			NextActionAt: &due,
		}
		m.nextID++
		inserted++
	}
	return inserted, nil
}

func (m *mockEnrollmentRepo) GetByID(_ context.Context, id int) (*model.CampaignEnrollment, error) {
	e, ok := m.enrollments[id]
	if !ok {
		return nil, apperrors.NewNotFound("enrollment", id)
	}
	return e, nil
}

func (m *mockEnrollmentRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*model.CampaignEnrollment, error) {
	var due []*model.CampaignEnrollment
	for _, e := range m.enrollments {
		if e.Status == model.EnrollmentActive && e.NextActionAt != nil && !e.NextActionAt.After(now) {
			due = append(due, e)
		}
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (m *mockEnrollmentRepo) AdvanceStep(_ context.Context, id, nextStep int, nextActionAt *time.Time) error {
	e, ok := m.enrollments[id]
	if !ok {
		return apperrors.NewNotFound("enrollment", id)
	}
	e.CurrentStep = nextStep
	e.NextActionAt = nextActionAt
	if nextActionAt == nil {
		e.Status = model.EnrollmentCompleted
	}
	return nil
}

func (m *mockEnrollmentRepo) SetStatus(_ context.Context, id int, status string) error {
	e, ok := m.enrollments[id]
	if !ok {
		return apperrors.NewNotFound("enrollment", id)
	}
	e.Status = status
	e.NextActionAt = nil
	return nil
}

type mockEventRepo struct {
	events  []*model.CampaignEvent
	seenIDs map[string]bool
	byType  map[string]int
	byStep  []repository.StepCounts

	// side-effect targets, mirroring the transactional repository method
	instances   *mockInstanceRepo
	enrollments *mockEnrollmentRepo
	effectsErr  error
}

func newMockEventRepo() *mockEventRepo {
	return &mockEventRepo{seenIDs: map[string]bool{}, byType: map[string]int{}}
}

func (m *mockEventRepo) InsertWithEffects(ctx context.Context, e *model.CampaignEvent, instanceID int, increments map[string]int, stopStatus string) (bool, error) {
	if m.effectsErr != nil {
		return false, m.effectsErr
	}
	if e.ProviderEventID != nil {
		if m.seenIDs[*e.ProviderEventID] {
			return false, nil
		}
		m.seenIDs[*e.ProviderEventID] = true
	}
	m.events = append(m.events, e)
	m.byType[e.EventType]++
	if m.instances != nil && len(increments) > 0 {
		if err := m.instances.ApplyCounterIncrements(ctx, instanceID, increments); err != nil {
			return false, err
		}
	}
	if m.enrollments != nil && stopStatus != "" {
		if err := m.enrollments.SetStatus(ctx, e.EnrollmentID, stopStatus); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (m *mockEventRepo) CountsByType(_ context.Context, _ int) (map[string]int, error) {
	return m.byType, nil
}

func (m *mockEventRepo) CountsByStep(_ context.Context, _ int) ([]repository.StepCounts, error) {
	return m.byStep, nil
}

func (m *mockEventRepo) ListByEnrollment(_ context.Context, enrollmentID, limit int) ([]*model.CampaignEvent, error) {
	var out []*model.CampaignEvent
	for _, e := range m.events {
		if e.EnrollmentID == enrollmentID {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type mockContactRepo struct {
	contacts map[int]*model.Contact
}

func (m *mockContactRepo) GetByID(_ context.Context, id int) (*model.Contact, error) {
	return m.contacts[id], nil
}

// mockProvider implements provider.Provider for webhook and handler tests.
type mockProvider struct {
	caps       provider.Capabilities
	sigErr     error
	parsed     []provider.RawEvent
	parseErr   error
	sent       []provider.SendParams
	sendErr    error
	sendResult provider.SendResult
}

func (m *mockProvider) Send(_ context.Context, params provider.SendParams) (provider.SendResult, error) {
	if m.sendErr != nil {
		return provider.SendResult{}, m.sendErr
	}
	m.sent = append(m.sent, params)
	return m.sendResult, nil
}

func (m *mockProvider) SendBatch(ctx context.Context, items []provider.SendParams) ([]provider.SendResult, error) {
	out := make([]provider.SendResult, 0, len(items))
	for _, item := range items {
		res, err := m.Send(ctx, item)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (m *mockProvider) GetStatus(context.Context, string) (string, error) { return "delivered", nil }

func (m *mockProvider) VerifyWebhookSignature(*http.Request, []byte, string) error { return m.sigErr }

func (m *mockProvider) ParseWebhookEvent([]byte) ([]provider.RawEvent, error) {
	return m.parsed, m.parseErr
}

func (m *mockProvider) Capabilities() provider.Capabilities { return m.caps }

func (m *mockProvider) ValidateConfig() error { return nil }

// mockResolver satisfies ProviderResolver and ProviderSource.
type mockResolver struct {
	providers map[string]*mockProvider
	secrets   map[string]string
}

func (m *mockResolver) ByChannel(channel string) (provider.Provider, error) {
	p, ok := m.providers[channel]
	if !ok {
		return nil, apperrors.NewNotFound("provider for channel", channel)
	}
	return p, nil
}

func (m *mockResolver) WebhookSecret(channel string) string { return m.secrets[channel] }

func (m *mockResolver) Email() (provider.EmailProvider, error) {
	return m.ByChannel(model.ChannelEmail)
}

func (m *mockResolver) LinkedIn() (provider.LinkedInProvider, error) {
	return m.ByChannel(model.ChannelLinkedIn)
}

func (m *mockResolver) Video() (provider.VideoProvider, error) {
	return m.ByChannel(model.ChannelVideo)
}

// mockPublisher records published events.
type mockPublisher struct {
	published []*model.CampaignEvent
}

func (m *mockPublisher) PublishEvent(e *model.CampaignEvent) error {
	m.published = append(m.published, e)
	return nil
}

func (m *mockPublisher) Close() error { return nil }
