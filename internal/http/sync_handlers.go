package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	httperrors "github.com/riftapp/rift/internal/http/errors"
	"github.com/riftapp/rift/internal/sync"
)

// SyncStatus reports whether a conflict awaits arbitration.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		respondJSON(w, http.StatusOK, map[string]any{"status": "disabled"})
		return
	}

	payload := map[string]any{"status": string(h.sync.Status())}
	if conflict := h.sync.Pending(); conflict != nil {
		payload["local_books"] = len(conflict.Local)
		payload["remote_books"] = len(conflict.Remote)
	}
	respondJSON(w, http.StatusOK, payload)
}

// SyncResolve answers a pending conflict with "local" or "remote".
func (h *Handler) SyncResolve(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		httperrors.JSON(w, http.StatusServiceUnavailable, "remote sync is not configured")
		return
	}

	var payload struct {
		Choice string `json:"choice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httperrors.BadRequest(w, r, h.logger, err, "invalid resolve payload")
		return
	}

	choice := sync.Choice(payload.Choice)
	if choice != sync.ChoiceLocal && choice != sync.ChoiceRemote {
		httperrors.JSON(w, http.StatusBadRequest, `choice must be "local" or "remote"`)
		return
	}

	err := h.sync.Resolve(r.Context(), choice)
	if errors.Is(err, sync.ErrNoConflict) {
		httperrors.JSON(w, http.StatusConflict, "no conflict pending")
		return
	}
	if err != nil {
		httperrors.Internal(w, r, h.logger, err, "failed to resolve conflict")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(h.sync.Status())})
}
