// Package responses defines the JSON bodies of the registrydash HTTP API.
package responses

import (
	"time"

	"git.home.luguber.info/inful/registrydash/internal/dashboard"
	"git.home.luguber.info/inful/registrydash/internal/eventstore"
)

// HealthResponse represents the health check API response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
	Resources int       `json:"resources"`
	Loaded    int       `json:"loaded"`
	Failing   []string  `json:"failing,omitempty"`
}

// ResourcesResponse lists every resource view.
type ResourcesResponse struct {
	Resources []dashboard.View `json:"resources"`
	Timestamp time.Time        `json:"timestamp"`
}

// RefreshResponse acknowledges a refresh. View is set when the caller waited
// for the run to settle.
type RefreshResponse struct {
	Status   string          `json:"status"`
	Resource string          `json:"resource"`
	View     *dashboard.View `json:"view,omitempty"`
}

type EventsResponse struct {
	Resource string             `json:"resource,omitempty"`
	Events   []eventstore.Event `json:"events"`
}

type HistoryResponse struct {
	Summaries []eventstore.ResourceSummary `json:"summaries"`
}
