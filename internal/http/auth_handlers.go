package httpserver

import (
	"net/http"
	"time"

	httperrors "github.com/riftapp/rift/internal/http/errors"
)

// Login starts the interactive consent flow by redirecting to the
// provider.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		httperrors.JSON(w, http.StatusServiceUnavailable, "remote sync is not configured")
		return
	}
	http.Redirect(w, r, h.sessions.BeginLogin(), http.StatusFound)
}

// Callback completes the consent flow and runs the initial
// reconciliation. Consent denial and provider errors fall back to
// local-only mode; they never crash the flow.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		httperrors.JSON(w, http.StatusServiceUnavailable, "remote sync is not configured")
		return
	}

	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		h.sessions.CancelLogin()
		h.logger.Info("login declined by user or provider", "error", errParam)
		respondJSON(w, http.StatusOK, map[string]any{
			"connected": false,
			"reason":    errParam,
		})
		return
	}

	if err := h.sessions.CompleteLogin(r.Context(), q.Get("state"), q.Get("code")); err != nil {
		h.logger.Warn("login failed", "error", err)
		httperrors.JSON(w, http.StatusBadGateway, "authentication failed")
		return
	}

	// Initial reconciliation runs once per authentication event. A
	// detected conflict parks for arbitration; transport errors only
	// degrade sync, the session itself stays up.
	if err := h.sync.Reconcile(r.Context()); err != nil {
		h.logger.Warn("initial reconciliation failed", "error", err)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"connected": true,
		"email":     h.sessions.Email(),
		"sync":      string(h.sync.Status()),
	})
}

// Logout tears down the remote session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		httperrors.JSON(w, http.StatusServiceUnavailable, "remote sync is not configured")
		return
	}
	h.sessions.Logout(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{"connected": false})
}

// Session reports the connection indicator state.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		respondJSON(w, http.StatusOK, map[string]any{"state": "disabled"})
		return
	}

	payload := map[string]any{
		"state": string(h.sessions.State()),
	}
	if email := h.sessions.Email(); email != "" {
		payload["email"] = email
	}
	if expiry := h.sessions.Expiry(); !expiry.IsZero() {
		payload["expiry"] = expiry.Format(time.RFC3339)
	}
	respondJSON(w, http.StatusOK, payload)
}
