package controller

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/driftline/outreach-backend/internal/apperrors"
)

func newTestRouter(c *CampaignController) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/templates/{id}", c.GetTemplate)
	r.Post("/templates", c.CreateTemplate)
	r.Post("/instances/{id}/enrollments", c.BulkEnroll)
	return r
}

// The error paths below never reach the service, so a zero-value controller
// is enough.
func TestGetTemplateRejectsBadID(t *testing.T) {
	r := newTestRouter(&CampaignController{})

	for _, id := range []string{"abc", "0", "-3"} {
		req := httptest.NewRequest("GET", "/templates/"+id, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "id %q", id)
		assert.Contains(t, rec.Body.String(), "error")
	}
}

func TestCreateTemplateRejectsMalformedJSON(t *testing.T) {
	r := newTestRouter(&CampaignController{})

	req := httptest.NewRequest("POST", "/templates", strings.NewReader(`{"name":`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkEnrollRejectsMalformedBody(t *testing.T) {
	r := newTestRouter(&CampaignController{})

	req := httptest.NewRequest("POST", "/instances/1/enrollments", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperrors.NewValidation("x", "bad"), http.StatusBadRequest},
		{apperrors.NewNotFound("template", 1), http.StatusNotFound},
		{apperrors.NewConflict("busy"), http.StatusConflict},
		{apperrors.NewRateLimited("sendgrid"), http.StatusTooManyRequests},
		{apperrors.NewWebhookSignature("sendgrid"), http.StatusUnauthorized},
		{apperrors.NewProvider("sendgrid", 503, "down"), http.StatusBadGateway},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}
