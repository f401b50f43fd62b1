// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/handler"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/service"
)

// CampaignController serves the state-changing endpoints.
type CampaignController struct {
	CampaignService *service.CampaignService
	// BookingURL receives contacts after a booking link is consumed. Empty
	// means a plain confirmation page.
	BookingURL string
	Log        *zap.Logger
}

func (c *CampaignController) ImportEntity(w http.ResponseWriter, r *http.Request) {
	var body service.ImportRequest
	if !c.decode(w, r, &body) {
		return
	}
	e, err := c.CampaignService.ImportEntity(r.Context(), body)
	if err != nil {
		handler.WriteError(w, c.Log, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, e)
}

func (c *CampaignController) StartSequence(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SequenceType string `json:"sequence_type"`
	}
	if !c.decode(w, r, &body) {
		return
	}
	if body.SequenceType == "" {
		handler.WriteError(w, c.Log, appErrors.NewValidation("sequence_type", "required"))
		return
	}
	e, err := c.CampaignService.StartSequence(r.Context(), chi.URLParam(r, "id"), body.SequenceType)
	if err != nil {
		handler.WriteError(w, c.Log, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, e)
}

func (c *CampaignController) Reactivate(w http.ResponseWriter, r *http.Request) {
	e, err := c.CampaignService.Reactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handler.WriteError(w, c.Log, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, e)
}

// ResolveToken is the target of the links embedded in outbound messages.
func (c *CampaignController) ResolveToken(w http.ResponseWriter, r *http.Request) {
	res, err := c.CampaignService.ResolveToken(r.Context(), chi.URLParam(r, "token"))
	if errors.Is(err, appErrors.ErrNotFound) {
		http.Error(w, "This link is no longer valid.", http.StatusNotFound)
		return
	}
	if err != nil {
		c.Log.Error("token resolution failed", zap.Error(err))
		http.Error(w, "Something went wrong, please try again later.", http.StatusInternalServerError)
		return
	}

	if res.Kind == model.ActionBooking && c.BookingURL != "" {
		http.Redirect(w, r, c.BookingURL, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	switch res.Kind {
	case model.ActionOptOut:
		io.WriteString(w, "You have been unsubscribed and will not hear from us again.\n")
	default:
		io.WriteString(w, "Thanks, your booking request was received.\n")
	}
}

func (c *CampaignController) Score(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !c.decode(w, r, &body) {
		return
	}
	handler.WriteJSON(w, http.StatusOK, c.CampaignService.Score(body.Text))
}

func (c *CampaignController) HandleInbound(w http.ResponseWriter, r *http.Request) {
	var body model.InboundMessage
	if !c.decode(w, r, &body) {
		return
	}
	out, err := c.CampaignService.HandleInbound(r.Context(), body)
	if err != nil {
		handler.WriteError(w, c.Log, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, out)
}

// RunSweep triggers one sweep. An optional {"now": RFC3339} overrides the
// clock, which lets operators replay a missed window.
func (c *CampaignController) RunSweep(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Now *time.Time `json:"now"`
	}
	if r.ContentLength != 0 && !c.decode(w, r, &body) {
		return
	}
	now := c.CampaignService.Now()
	if body.Now != nil {
		now = *body.Now
	}
	res, err := c.CampaignService.RunSweep(r.Context(), now)
	if err != nil {
		handler.WriteError(w, c.Log, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, res)
}

func (c *CampaignController) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		handler.WriteError(w, c.Log, appErrors.NewValidation("body", "invalid JSON: "+err.Error()))
		return false
	}
	return true
}
