package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/outreach-engine/internal/handler"
)

// NewRouter mounts every HTTP route of the engine.
func NewRouter(c *CampaignController, h *handler.CampaignHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)

	r.Post("/entities", c.ImportEntity)
	r.Get("/entities/{id}", h.GetEntity)
	r.Post("/entities/{id}/sequence", c.StartSequence)
	r.Post("/entities/{id}/reactivate", c.Reactivate)
	r.Get("/entities/{id}/preview", h.Preview)
	r.Get("/stalled", h.ListStalled)
	r.Get("/stats", h.GetStats)

	r.Get("/t/{token}", c.ResolveToken)
	r.Post("/score", c.Score)
	r.Post("/inbound", c.HandleInbound)
	r.Post("/sweeps", c.RunSweep)
	return r
}
