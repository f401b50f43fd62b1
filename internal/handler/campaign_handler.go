// internal/handler/campaign_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/service"
)

// CampaignHandler serves the read-only views of campaign state.
type CampaignHandler struct {
	Service *service.CampaignService
	Log     *zap.Logger
}

func NewCampaignHandler(svc *service.CampaignService, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{Service: svc, Log: log}
}

// GetEntity returns one entity by id.
func (h *CampaignHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	e, err := h.Service.GetEntity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, h.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, e)
}

// Preview renders the entity's current step, or ?cursor=n.
func (h *CampaignHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var cursor *int
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, h.Log, appErrors.NewValidation("cursor", "must be a non-negative integer"))
			return
		}
		cursor = &n
	}

	msg, err := h.Service.Preview(r.Context(), chi.URLParam(r, "id"), cursor)
	if err != nil {
		WriteError(w, h.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, msg)
}

// ListStalled returns entities waiting for manual review.
func (h *CampaignHandler) ListStalled(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	entities, err := h.Service.ListStalled(r.Context(), limit)
	if err != nil {
		WriteError(w, h.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": entities, "count": len(entities)})
}

// GetStats returns global counters, or per ?category=.
func (h *CampaignHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.GetStats(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		WriteError(w, h.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

func (h *CampaignHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
