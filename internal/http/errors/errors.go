// Package errors holds shared helpers for reporting handler failures.
package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// JSON writes a JSON error payload with the given status.
func JSON(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Internal logs err with the request ID and returns a generic 500 to
// the client.
func Internal(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, message string) {
	logger.Error(message, "error", err, "request_id", middleware.GetReqID(r.Context()))
	JSON(w, http.StatusInternalServerError, "internal server error")
}

// BadRequest logs err and returns the client-facing message with 400.
func BadRequest(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, clientMessage string) {
	logger.Warn("bad request", "error", err, "request_id", middleware.GetReqID(r.Context()))
	JSON(w, http.StatusBadRequest, clientMessage)
}
