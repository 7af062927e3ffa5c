// Package handlers implements the registrydash HTTP API.
package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/logfields"
)

// writeJSON encodes v into a buffer first so a failed encode never leaves a
// partial response. The caller reports encode errors.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if pretty(r) {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("failed writing JSON response body", logfields.Error(err))
		return err
	}
	return nil
}

func pretty(r *http.Request) bool {
	if r == nil {
		return false
	}
	p := r.URL.Query().Get("pretty")
	return p == "1" || p == "true"
}

// respond writes v, turning an encode failure into an internal error response.
func respond(adapter *errors.HTTPErrorAdapter, w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := writeJSON(w, r, status, v); err != nil {
		adapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to encode response").Build())
	}
}
