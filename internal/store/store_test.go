package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftapp/rift/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rift.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := Open(path, logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestHealthCheck(t *testing.T) {
	st := openTestStore(t)
	assert.NoError(t, st.HealthCheck(context.Background()))
}

func TestLoadCollectionEmpty(t *testing.T) {
	st := openTestStore(t)

	books, err := st.LoadCollection(context.Background())
	require.NoError(t, err)
	assert.Empty(t, books)
	assert.NotNil(t, books)
}

func TestCollectionRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	books := model.Collection{
		{ID: 1, Title: "Hyperion", Status: "Finished", TrackingType: "pages", CurrentCount: 482, Rating: 5, IsFavorite: true},
		{ID: 2, Title: "Ubik", Status: "Reading", TrackingType: "chapters", CurrentCount: 3, Rating: model.Unrated},
	}

	require.NoError(t, st.SaveCollection(ctx, books))

	got, err := st.LoadCollection(ctx)
	require.NoError(t, err)
	assert.True(t, books.Equal(got))
}

func TestSaveCollectionOverwrites(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveCollection(ctx, model.Collection{{ID: 1, Title: "A", Rating: model.Unrated}}))
	require.NoError(t, st.SaveCollection(ctx, model.Collection{}))

	got, err := st.LoadCollection(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadCollectionMalformed(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.writeSlot(ctx, slotBooks, []byte("{not json")))

	books, err := st.LoadCollection(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestFilter(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	filter, err := st.LoadFilter(ctx)
	require.NoError(t, err)
	assert.Equal(t, "all", filter)

	require.NoError(t, st.SaveFilter(ctx, "favorites"))

	filter, err = st.LoadFilter(ctx)
	require.NoError(t, err)
	assert.Equal(t, "favorites", filter)
}

func TestSessionBlob(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.LoadSession(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	blob := []byte{0x01, 0x02, 0x03, 0xff}
	require.NoError(t, st.SaveSession(ctx, blob))

	got, err := st.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	require.NoError(t, st.DeleteSession(ctx))
	_, err = st.LoadSession(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting an absent session is not an error
	assert.NoError(t, st.DeleteSession(ctx))
}
