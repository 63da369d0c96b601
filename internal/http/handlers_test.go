package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftapp/rift/internal/capabilities"
	"github.com/riftapp/rift/internal/config"
	"github.com/riftapp/rift/internal/model"
	"github.com/riftapp/rift/internal/store"
	appsync "github.com/riftapp/rift/internal/sync"
	"github.com/riftapp/rift/internal/tracker"
)

// stubRemote is a minimal in-memory remote store for arbitration tests.
type stubRemote struct {
	mu    gosync.Mutex
	books model.Collection
}

func (r *stubRemote) Download(ctx context.Context) (model.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.books.Clone(), nil
}

func (r *stubRemote) Upload(ctx context.Context, books model.Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.books = books.Clone()
	return nil
}

type stubSession struct{}

func (stubSession) Authenticated() bool { return true }

// newTestServer stands up the router in local-only mode: no session
// manager, no synchronizer.
func newTestServer(t *testing.T) (*httptest.Server, *tracker.Tracker) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(filepath.Join(t.TempDir(), "rift.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tr, err := tracker.New(context.Background(), st, logger)
	require.NoError(t, err)

	cfg := &config.Config{TrustedProxies: []string{"127.0.0.1/32"}}
	caps := capabilities.NewClient("", logger)
	h := NewHandler(tr, nil, nil, caps, logger)

	srv := httptest.NewServer(NewRouter(cfg, st, h))
	t.Cleanup(srv.Close)
	return srv, tr
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBook(t *testing.T, resp *http.Response) model.Book {
	t.Helper()
	var book model.Book
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&book))
	return book
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestBookLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/books", map[string]any{
		"title":        "Roadside Picnic",
		"status":       "Reading",
		"trackingType": "pages",
		"currentCount": 42,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decodeBook(t, resp)
	assert.NotZero(t, created.ID)
	assert.Equal(t, model.Unrated, created.Rating)
	assert.False(t, created.IsFavorite)

	idPath := srv.URL + "/api/books/" + strconv.FormatInt(created.ID, 10)

	resp = doJSON(t, http.MethodPost, idPath+"/favorite", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBook(t, resp).IsFavorite)

	// Editing through the save endpoint keeps the favorite flag.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/books", map[string]any{
		"id":     created.ID,
		"title":  "Roadside Picnic",
		"status": "Finished",
		"rating": 5,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBook(t, resp)
	assert.True(t, updated.IsFavorite)
	assert.Equal(t, model.Rating(5), updated.Rating)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/books", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var books model.Collection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&books))
	require.Len(t, books, 1)

	resp = doJSON(t, http.MethodDelete, idPath, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// A repeat delete is still a success: removing nothing is fine.
	resp = doJSON(t, http.MethodDelete, idPath, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestSaveBookValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("missing title", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/books", map[string]any{
			"status": "Reading",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("negative count", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/books", map[string]any{
			"title":        "Negative",
			"currentCount": -1,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/books", "application/json", strings.NewReader("{broken"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestToggleFavoriteMissingBook(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/books/999/favorite", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListBooksFilterAndSearch(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, b := range []map[string]any{
		{"title": "Annihilation", "status": "Finished"},
		{"title": "Authority", "status": "Reading"},
	} {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/books", b)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/books?filter=Finished", nil)
	var books model.Collection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&books))
	require.Len(t, books, 1)
	assert.Equal(t, "Annihilation", books[0].Title)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/books?q=auth", nil)
	books = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&books))
	require.Len(t, books, 1)
	assert.Equal(t, "Authority", books[0].Title)
}

func TestFilterEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/filter", nil)
	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "all", payload["filter"])

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/filter", map[string]string{"filter": "favorites"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/filter", nil)
	payload = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "favorites", payload["filter"])

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/filter", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExportImport(t *testing.T) {
	srv, tr := newTestServer(t)

	_, err := tr.CreateOrUpdate(context.Background(), tracker.BookInput{Title: "Exported"})
	require.NoError(t, err)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "rift-library-")

	exported, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(exported), `"Exported"`)

	// Round-trip the export through the import endpoint.
	resp, err = http.Post(srv.URL+"/api/import", "application/json", bytes.NewReader(exported))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 1, result["imported"])
}

func TestImportRejectsNonArray(t *testing.T) {
	srv, tr := newTestServer(t)

	_, err := tr.CreateOrUpdate(context.Background(), tracker.BookInput{Title: "Survivor"})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/import", "application/json", strings.NewReader(`{"oops": true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The existing collection is untouched by a rejected import.
	assert.Len(t, tr.Books(), 1)
}

func TestSyncArbitrationEndpoints(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(filepath.Join(t.TempDir(), "rift.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	local := model.Collection{{ID: 1, Title: "Local Copy", Rating: model.Unrated}}
	require.NoError(t, st.SaveCollection(context.Background(), local))

	tr, err := tracker.New(context.Background(), st, logger)
	require.NoError(t, err)

	remoteBooks := model.Collection{
		{ID: 2, Title: "Remote One", Rating: model.Unrated},
		{ID: 3, Title: "Remote Two", Rating: model.Unrated},
	}
	remote := &stubRemote{books: remoteBooks.Clone()}
	syncer := appsync.New(st, remote, stubSession{}, logger)
	syncer.OnApply = tr.ReplaceAll
	tr.SetPusher(syncer)

	cfg := &config.Config{TrustedProxies: []string{"127.0.0.1/32"}}
	h := NewHandler(tr, nil, syncer, capabilities.NewClient("", logger), logger)
	srv := httptest.NewServer(NewRouter(cfg, st, h))
	t.Cleanup(srv.Close)

	require.NoError(t, syncer.Reconcile(context.Background()))

	t.Run("status reports the parked conflict", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, srv.URL+"/api/sync/status", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.Equal(t, "conflict", payload["status"])
		assert.Equal(t, float64(1), payload["local_books"])
		assert.Equal(t, float64(2), payload["remote_books"])
	})

	t.Run("unknown choice is rejected", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/sync/resolve", map[string]string{"choice": "merge"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("remote choice replaces the collection", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/sync/resolve", map[string]string{"choice": "remote"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.Equal(t, "idle", payload["status"])
		assert.True(t, remoteBooks.Equal(tr.Books()))
	})

	t.Run("status returns to idle", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, srv.URL+"/api/sync/status", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.Equal(t, "idle", payload["status"])
	})

	t.Run("resolving again conflicts", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/sync/resolve", map[string]string{"choice": "local"})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestLocalOnlyModeEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("session is disabled", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, srv.URL+"/api/session", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.Equal(t, "disabled", payload["state"])
	})

	t.Run("sync status is disabled", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, srv.URL+"/api/sync/status", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.Equal(t, "disabled", payload["status"])
	})

	t.Run("resolve is unavailable", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/sync/resolve", map[string]string{"choice": "local"})
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("login is unavailable", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, srv.URL+"/auth/login", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("capabilities fall back to empty", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, srv.URL+"/api/capabilities", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var sections []capabilities.Section
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&sections))
		assert.Empty(t, sections)
	})
}
