package httpserver

import (
	"log/slog"
	"net/http"
)

// Options configures optional server wiring.
type Options struct {
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler

	Logger *slog.Logger
}
