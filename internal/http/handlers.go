package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/riftapp/rift/internal/capabilities"
	httperrors "github.com/riftapp/rift/internal/http/errors"
	"github.com/riftapp/rift/internal/session"
	"github.com/riftapp/rift/internal/sync"
	"github.com/riftapp/rift/internal/tracker"
	"github.com/riftapp/rift/internal/validation"
)

// Import payloads larger than this are rejected outright.
const maxImportBytes = 8 << 20

// Handler serves the JSON API. Sessions and synchronizer are nil when
// the server runs in local-only mode.
type Handler struct {
	tracker   *tracker.Tracker
	sessions  *session.Manager
	sync      *sync.Synchronizer
	caps      *capabilities.Client
	validator *validation.Validator
	logger    *slog.Logger
}

// NewHandler assembles the API handler.
func NewHandler(tr *tracker.Tracker, sessions *session.Manager, sy *sync.Synchronizer, caps *capabilities.Client, logger *slog.Logger) *Handler {
	return &Handler{
		tracker:   tr,
		sessions:  sessions,
		sync:      sy,
		caps:      caps,
		validator: validation.New(),
		logger:    logger,
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// ListBooks returns the filtered, searched view of the collection.
// Defaults to the persisted filter when none is given.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")
	if filter == "" {
		filter = h.tracker.Filter()
	}
	query := r.URL.Query().Get("q")
	respondJSON(w, http.StatusOK, h.tracker.List(filter, query))
}

// SaveBook creates or updates a record.
func (h *Handler) SaveBook(w http.ResponseWriter, r *http.Request) {
	var input tracker.BookInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		httperrors.BadRequest(w, r, h.logger, err, "invalid book payload")
		return
	}
	if err := h.validator.Validate(input); err != nil {
		httperrors.JSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	book, err := h.tracker.CreateOrUpdate(r.Context(), input)
	if err != nil {
		// The mutation took effect in memory but is not durably saved.
		httperrors.Internal(w, r, h.logger, err, "failed to persist book")
		return
	}
	respondJSON(w, http.StatusOK, book)
}

// ToggleFavorite flips the favorite flag on a record.
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httperrors.BadRequest(w, r, h.logger, err, "invalid book id")
		return
	}

	book, found, err := h.tracker.ToggleFavorite(r.Context(), id)
	if err != nil {
		httperrors.Internal(w, r, h.logger, err, "failed to persist favorite toggle")
		return
	}
	if !found {
		httperrors.JSON(w, http.StatusNotFound, "book not found")
		return
	}
	respondJSON(w, http.StatusOK, book)
}

// DeleteBook removes a record. Deleting an unknown id is a no-op.
func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httperrors.BadRequest(w, r, h.logger, err, "invalid book id")
		return
	}

	if _, err := h.tracker.Delete(r.Context(), id); err != nil {
		httperrors.Internal(w, r, h.logger, err, "failed to persist deletion")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetFilter returns the active filter.
func (h *Handler) GetFilter(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"filter": h.tracker.Filter()})
}

// SetFilter persists the active filter.
func (h *Handler) SetFilter(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Filter string `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Filter == "" {
		httperrors.BadRequest(w, r, h.logger, err, "invalid filter payload")
		return
	}
	if err := h.tracker.SetFilter(r.Context(), payload.Filter); err != nil {
		httperrors.Internal(w, r, h.logger, err, "failed to persist filter")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"filter": payload.Filter})
}

// Export offers the pretty-printed collection as a dated download.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	data, filename, err := h.tracker.Export()
	if err != nil {
		httperrors.Internal(w, r, h.logger, err, "failed to export collection")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(data)
}

// Import replaces the collection from an uploaded JSON array. Format
// errors are rejected before any state mutation.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		httperrors.BadRequest(w, r, h.logger, err, "failed to read import payload")
		return
	}

	count, err := h.tracker.Import(r.Context(), data)
	if errors.Is(err, tracker.ErrInvalidFormat) {
		httperrors.BadRequest(w, r, h.logger, err, "import payload must be a JSON array of book records")
		return
	}
	if err != nil {
		httperrors.Internal(w, r, h.logger, err, "failed to persist import")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"imported": count})
}

// Capabilities returns the externally hosted capabilities list.
func (h *Handler) Capabilities(w http.ResponseWriter, r *http.Request) {
	sections, err := h.caps.Fetch(r.Context())
	if errors.Is(err, capabilities.ErrNotConfigured) {
		respondJSON(w, http.StatusOK, []capabilities.Section{})
		return
	}
	if err != nil {
		h.logger.Warn("capabilities fetch failed", "error", err)
		httperrors.JSON(w, http.StatusBadGateway, "capabilities endpoint unavailable")
		return
	}
	respondJSON(w, http.StatusOK, sections)
}
