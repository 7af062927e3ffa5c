package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/server/responses"
	"git.home.luguber.info/inful/registrydash/internal/version"
)

// MonitoringHandlers serves the health endpoint.
type MonitoringHandlers struct {
	dash         Dashboard
	started      time.Time
	errorAdapter *errors.HTTPErrorAdapter
}

func NewMonitoringHandlers(dash Dashboard, started time.Time, logger *slog.Logger) *MonitoringHandlers {
	return &MonitoringHandlers{dash: dash, started: started, errorAdapter: errors.NewHTTPErrorAdapter(logger)}
}

// HandleHealthCheck reports "healthy" while no resource holds a terminal
// error and "degraded" otherwise. Both are served with 200.
func (h *MonitoringHandlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := responses.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		Uptime:    time.Since(h.started).Seconds(),
	}
	for _, v := range h.dash.Resources() {
		health.Resources++
		if v.Loaded {
			health.Loaded++
		}
		if v.Error != nil {
			health.Failing = append(health.Failing, v.Name)
		}
	}
	if len(health.Failing) > 0 {
		health.Status = "degraded"
	}
	respond(h.errorAdapter, w, r, http.StatusOK, health)
}
