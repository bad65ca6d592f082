package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/model"
	"github.com/driftline/outreach-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func urlID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		return 0, apperrors.NewValidation("id", "must be a positive integer")
	}
	return id, nil
}

// ====================== Templates ======================

func (c *CampaignController) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name          string                       `json:"name"`
		Type          string                       `json:"type"`
		PathType      string                       `json:"path_type"`
		Settings      json.RawMessage              `json:"settings"`
		EmailSteps    []model.EmailSequenceStep    `json:"email_steps"`
		LinkedInSteps []model.LinkedInSequenceStep `json:"linkedin_steps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewValidation("body", err.Error()))
		return
	}

	template, err := c.CampaignService.CreateTemplate(r.Context(), &model.CampaignTemplate{
		Name:          body.Name,
		Type:          body.Type,
		PathType:      body.PathType,
		Settings:      body.Settings,
		EmailSteps:    body.EmailSteps,
		LinkedInSteps: body.LinkedInSteps,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, template)
}

func (c *CampaignController) ListTemplates(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	templateType := r.URL.Query().Get("type")
	activeOnly := r.URL.Query().Get("active") == "true"

	templates, pagination, err := c.CampaignService.ListTemplates(r.Context(), page, pageSize, templateType, activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": templates, "pagination": pagination})
}

func (c *CampaignController) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	template, err := c.CampaignService.GetTemplate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, template)
}

func (c *CampaignController) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Name     string          `json:"name"`
		PathType string          `json:"path_type"`
		Settings json.RawMessage `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewValidation("body", err.Error()))
		return
	}
	template := &model.CampaignTemplate{ID: id, Name: body.Name, PathType: body.PathType, Settings: body.Settings}
	if err := c.CampaignService.UpdateTemplate(r.Context(), template); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, template)
}

func (c *CampaignController) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := c.CampaignService.DeleteTemplate(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ====================== Instances ======================

func (c *CampaignController) CreateInstance(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TemplateID     int             `json:"template_id"`
		Name           string          `json:"name"`
		ProviderConfig json.RawMessage `json:"provider_config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewValidation("body", err.Error()))
		return
	}
	instance, err := c.CampaignService.CreateInstance(r.Context(), body.TemplateID, body.Name, body.ProviderConfig)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, instance)
}

func (c *CampaignController) ListInstances(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	instances, pagination, err := c.CampaignService.ListInstances(r.Context(), page, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": instances, "pagination": pagination})
}

func (c *CampaignController) GetInstance(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	instance, err := c.CampaignService.GetInstance(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, instance)
}

func (c *CampaignController) UpdateInstanceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewValidation("body", err.Error()))
		return
	}
	instance, err := c.CampaignService.UpdateInstanceStatus(r.Context(), id, body.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, instance)
}

func (c *CampaignController) BulkEnroll(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		ContactIDs []int `json:"contact_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewValidation("body", err.Error()))
		return
	}
	enrolled, skipped, err := c.CampaignService.BulkEnroll(r.Context(), id, body.ContactIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"enrolled": enrolled, "skipped": skipped})
}

func (c *CampaignController) GetPerformance(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	perf, err := c.CampaignService.GetPerformance(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}
