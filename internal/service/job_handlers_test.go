package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/model"
	"github.com/driftline/outreach-backend/internal/provider"
)

type handlerFixture struct {
	sender      *StepSender
	templates   *mockTemplateRepo
	instances   *mockInstanceRepo
	enrollments *mockEnrollmentRepo
	contacts    *mockContactRepo
	email       *mockProvider
	linkedin    *mockProvider
	video       *mockProvider
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	templates := newMockTemplateRepo()
	instances := newMockInstanceRepo()
	enrollments := newMockEnrollmentRepo()
	contacts := &mockContactRepo{contacts: map[int]*model.Contact{
		1: {ID: 1, Email: "ada@example.com", FirstName: "Ada", Company: "Engines", LinkedInURL: "https://linkedin.com/in/ada"},
	}}

	email := &mockProvider{caps: provider.Capabilities{Name: "sendgrid", Channel: model.ChannelEmail}, sendResult: provider.SendResult{ProviderMessageID: "msg-1"}}
	linkedin := &mockProvider{caps: provider.Capabilities{Name: "unipile", Channel: model.ChannelLinkedIn}, sendResult: provider.SendResult{ProviderMessageID: "li-1"}}
	video := &mockProvider{caps: provider.Capabilities{Name: "heygen", Channel: model.ChannelVideo}, sendResult: provider.SendResult{ProviderMessageID: "vid-1"}}

	resolver := &mockResolver{providers: map[string]*mockProvider{
		model.ChannelEmail:    email,
		model.ChannelLinkedIn: linkedin,
		model.ChannelVideo:    video,
	}}

	sender := &StepSender{
		TemplateRepo:   templates,
		InstanceRepo:   instances,
		EnrollmentRepo: enrollments,
		ContactRepo:    contacts,
		Providers:      resolver,
	}
	return &handlerFixture{
		sender: sender, templates: templates, instances: instances,
		enrollments: enrollments, contacts: contacts,
		email: email, linkedin: linkedin, video: video,
	}
}

// seedActiveEnrollment wires template -> active instance -> active enrollment
// at step 1 for contact 1.
func (f *handlerFixture) seedActiveEnrollment(t *testing.T) *model.CampaignEnrollment {
	t.Helper()
	ctx := context.Background()
	tpl := demoTemplate()
	require.NoError(t, f.templates.Create(ctx, tpl))

	inst := &model.CampaignInstance{TemplateID: tpl.ID, Name: "run"}
	require.NoError(t, f.instances.CreateFromTemplate(ctx, inst))
	inst.Status = model.InstanceActive

	_, err := f.enrollments.BulkEnroll(ctx, inst.ID, []int{1}, time.Now())
	require.NoError(t, err)
	return f.enrollments.enrollments[1]
}

func stepPayload(t *testing.T, enrollmentID, step int) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(model.SendStepPayload{EnrollmentID: enrollmentID, StepNumber: step})
	require.NoError(t, err)
	return b
}

func TestEmailStepHandlerSendsAndAdvances(t *testing.T) {
	f := newHandlerFixture(t)
	enrollment := f.seedActiveEnrollment(t)
	h := EmailStepHandler{StepSender: f.sender}

	err := h.Handle(context.Background(), stepPayload(t, enrollment.ID, 1))
	require.NoError(t, err)

	require.Len(t, f.email.sent, 1)
	sent := f.email.sent[0]
	assert.Equal(t, "Hi Ada", sent.Subject)
	assert.Equal(t, enrollment.ID, sent.EnrollmentID)

	// advanced to the linkedin step with its 24h delay
	assert.Equal(t, 2, enrollment.CurrentStep)
	require.NotNil(t, enrollment.NextActionAt)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *enrollment.NextActionAt, time.Minute)
}

func TestEmailStepHandlerSkipsStaleJob(t *testing.T) {
	f := newHandlerFixture(t)
	enrollment := f.seedActiveEnrollment(t)
	enrollment.CurrentStep = 3 // job carries step 1, enrollment moved on
	h := EmailStepHandler{StepSender: f.sender}

	err := h.Handle(context.Background(), stepPayload(t, enrollment.ID, 1))
	require.NoError(t, err)
	assert.Empty(t, f.email.sent)
	assert.Equal(t, 3, enrollment.CurrentStep)
}

func TestEmailStepHandlerSkipsPausedInstance(t *testing.T) {
	f := newHandlerFixture(t)
	enrollment := f.seedActiveEnrollment(t)
	f.instances.instances[enrollment.InstanceID].Status = model.InstancePaused
	h := EmailStepHandler{StepSender: f.sender}

	err := h.Handle(context.Background(), stepPayload(t, enrollment.ID, 1))
	require.NoError(t, err)
	assert.Empty(t, f.email.sent)
}

func TestEmailStepHandlerPropagatesProviderError(t *testing.T) {
	f := newHandlerFixture(t)
	enrollment := f.seedActiveEnrollment(t)
	f.email.sendErr = apperrors.NewProvider("sendgrid", 500, "upstream down")
	h := EmailStepHandler{StepSender: f.sender}

	err := h.Handle(context.Background(), stepPayload(t, enrollment.ID, 1))
	var pe *apperrors.ProviderError
	require.ErrorAs(t, err, &pe)
	// enrollment not advanced on failure, the retry will resend step 1
	assert.Equal(t, 1, enrollment.CurrentStep)
}

func TestFinalStepCompletesEnrollment(t *testing.T) {
	f := newHandlerFixture(t)
	enrollment := f.seedActiveEnrollment(t)
	enrollment.CurrentStep = 3
	h := EmailStepHandler{StepSender: f.sender}

	err := h.Handle(context.Background(), stepPayload(t, enrollment.ID, 3))
	require.NoError(t, err)

	require.Len(t, f.email.sent, 1)
	assert.Equal(t, model.EnrollmentCompleted, enrollment.Status)
	assert.Nil(t, enrollment.NextActionAt)
}

func TestLinkedInStepHandlerSends(t *testing.T) {
	f := newHandlerFixture(t)
	enrollment := f.seedActiveEnrollment(t)
	enrollment.CurrentStep = 2
	h := LinkedInStepHandler{StepSender: f.sender}

	err := h.Handle(context.Background(), stepPayload(t, enrollment.ID, 2))
	require.NoError(t, err)

	require.Len(t, f.linkedin.sent, 1)
	assert.Equal(t, model.LinkedInActionConnect, f.linkedin.sent[0].Action)
	assert.Equal(t, 3, enrollment.CurrentStep)
}

func TestLinkedInStepSkipsContactWithoutProfile(t *testing.T) {
	f := newHandlerFixture(t)
	enrollment := f.seedActiveEnrollment(t)
	enrollment.CurrentStep = 2
	f.contacts.contacts[1].LinkedInURL = ""
	h := LinkedInStepHandler{StepSender: f.sender}

	err := h.Handle(context.Background(), stepPayload(t, enrollment.ID, 2))
	require.NoError(t, err)

	assert.Empty(t, f.linkedin.sent)
	// the sequence still moves forward
	assert.Equal(t, 3, enrollment.CurrentStep)
}

func TestVideoGenerateHandlerRendersScript(t *testing.T) {
	f := newHandlerFixture(t)
	enrollment := f.seedActiveEnrollment(t)
	h := VideoGenerateHandler{StepSender: f.sender}

	payload, err := json.Marshal(model.GenerateVideoPayload{
		EnrollmentID: enrollment.ID,
		StepNumber:   1,
		Script:       "Hi {first_name} at {company}",
	})
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), payload))
	require.Len(t, f.video.sent, 1)
	assert.Equal(t, "Hi Ada at Engines", f.video.sent[0].Script)
	// generation outcome arrives by webhook; the step does not advance here
	assert.Equal(t, 1, enrollment.CurrentStep)
}

func TestVideoGenerateSkipsStoppedEnrollment(t *testing.T) {
	f := newHandlerFixture(t)
	enrollment := f.seedActiveEnrollment(t)
	enrollment.Status = model.EnrollmentUnsubscribed
	h := VideoGenerateHandler{StepSender: f.sender}

	payload, _ := json.Marshal(model.GenerateVideoPayload{EnrollmentID: enrollment.ID, StepNumber: 1, Script: "x"})
	require.NoError(t, h.Handle(context.Background(), payload))
	assert.Empty(t, f.video.sent)
}

func TestHandlerRejectsMalformedPayload(t *testing.T) {
	f := newHandlerFixture(t)
	h := EmailStepHandler{StepSender: f.sender}

	err := h.Handle(context.Background(), json.RawMessage(`{bad`))
	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)
}
