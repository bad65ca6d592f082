package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/service"
)

// maxWebhookBody caps how much of a vendor callback we will buffer.
const maxWebhookBody = 1 << 20

// WebhookHandler receives vendor callbacks and feeds them through the
// ingestion pipeline. Vendors retry on non-2xx, so anything already
// processed must come back 200.
type WebhookHandler struct {
	WebhookService *service.WebhookService
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	providerName := chi.URLParam(r, "provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	result, err := h.WebhookService.Ingest(r.Context(), channel, providerName, r, body)
	if err != nil {
		status := apperrors.HTTPStatus(err)
		if status >= 500 {
			log.Error().Err(err).Str("channel", channel).Str("provider", providerName).Msg("webhook ingest failed")
		}
		respond(w, status, map[string]string{"error": err.Error()})
		return
	}

	respond(w, http.StatusOK, result)
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
