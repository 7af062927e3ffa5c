package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"git.home.luguber.info/inful/registrydash/internal/dashboard"
	"git.home.luguber.info/inful/registrydash/internal/eventstore"
	"git.home.luguber.info/inful/registrydash/internal/fetchstate"
	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/server/responses"
)

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 1000
)

// Dashboard is the part of *dashboard.Dashboard the handlers need.
type Dashboard interface {
	Names() []string
	Resources() []dashboard.View
	Resource(name string) (dashboard.View, error)
	Refresh(name string) (fetchstate.Ticket, error)
	Events(ctx context.Context, resource string, limit int) ([]eventstore.Event, error)
	Summaries() []eventstore.ResourceSummary
}

// ResourceHandlers serves resource views, refreshes and fetch history.
type ResourceHandlers struct {
	dash         Dashboard
	errorAdapter *errors.HTTPErrorAdapter
}

func NewResourceHandlers(dash Dashboard, logger *slog.Logger) *ResourceHandlers {
	return &ResourceHandlers{dash: dash, errorAdapter: errors.NewHTTPErrorAdapter(logger)}
}

// HandleList serves GET /api/v1/resources.
func (h *ResourceHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	respond(h.errorAdapter, w, r, http.StatusOK, responses.ResourcesResponse{
		Resources: h.dash.Resources(),
		Timestamp: time.Now().UTC(),
	})
}

// HandleGet serves GET /api/v1/resources/{name}.
func (h *ResourceHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	v, err := h.dash.Resource(r.PathValue("name"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	respond(h.errorAdapter, w, r, http.StatusOK, v)
}

// HandleRefresh serves POST /api/v1/resources/{name}/refresh. With wait=true
// it blocks until the run finishes and returns the resulting view, with status
// "superseded" when a newer run replaced this one before it could settle.
func (h *ResourceHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ticket, err := h.dash.Refresh(name)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		respond(h.errorAdapter, w, r, http.StatusAccepted, responses.RefreshResponse{Status: "accepted", Resource: name})
		return
	}

	select {
	case <-ticket.Done:
	case <-r.Context().Done():
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(r.Context().Err(), errors.CategoryRuntime, "refresh interrupted").
			WithContext("resource", name).
			Build())
		return
	}
	v, err := h.dash.Resource(name)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	status := "settled"
	if v.Generation != ticket.Generation {
		status = "superseded"
	}
	respond(h.errorAdapter, w, r, http.StatusOK, responses.RefreshResponse{Status: status, Resource: name, View: &v})
}

// HandleEvents serves GET /api/v1/events?resource=&limit=.
func (h *ResourceHandlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	limit := defaultEventsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxEventsLimit {
			h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("limit must be between 1 and 1000").
				WithContext("limit", raw).
				Build())
			return
		}
		limit = n
	}
	if resource != "" {
		if _, err := h.dash.Resource(resource); err != nil {
			h.errorAdapter.WriteErrorResponse(w, r, err)
			return
		}
	}

	events, err := h.dash.Events(r.Context(), resource, limit)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if events == nil {
		events = []eventstore.Event{}
	}
	respond(h.errorAdapter, w, r, http.StatusOK, responses.EventsResponse{Resource: resource, Events: events})
}

// HandleHistory serves GET /api/v1/history.
func (h *ResourceHandlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	summaries := h.dash.Summaries()
	if summaries == nil {
		summaries = []eventstore.ResourceSummary{}
	}
	respond(h.errorAdapter, w, r, http.StatusOK, responses.HistoryResponse{Summaries: summaries})
}
