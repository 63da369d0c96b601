package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRating(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Rating
	}{
		{"empty is unrated", "", Unrated},
		{"sentinel is unrated", "Unrated", Unrated},
		{"sentinel case insensitive", "unrated", Unrated},
		{"plain number", "4", 4},
		{"zero stays zero, not unrated", "0", 0},
		{"clamped high", "9", 5},
		{"clamped negative", "-3", 0},
		{"garbage is unrated", "five", Unrated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRating(tt.input))
		})
	}
}

func TestRatingJSON(t *testing.T) {
	t.Run("unrated marshals as sentinel string", func(t *testing.T) {
		data, err := json.Marshal(Unrated)
		require.NoError(t, err)
		assert.Equal(t, `"Unrated"`, string(data))
	})

	t.Run("rated marshals as number", func(t *testing.T) {
		data, err := json.Marshal(Rating(3))
		require.NoError(t, err)
		assert.Equal(t, `3`, string(data))
	})

	t.Run("decodes number", func(t *testing.T) {
		var r Rating
		require.NoError(t, json.Unmarshal([]byte(`5`), &r))
		assert.Equal(t, Rating(5), r)
	})

	t.Run("decodes sentinel string", func(t *testing.T) {
		var r Rating
		require.NoError(t, json.Unmarshal([]byte(`"Unrated"`), &r))
		assert.Equal(t, Unrated, r)
		assert.False(t, r.IsRated())
	})

	t.Run("decodes numeric string", func(t *testing.T) {
		var r Rating
		require.NoError(t, json.Unmarshal([]byte(`"2"`), &r))
		assert.Equal(t, Rating(2), r)
	})

	t.Run("rejects other shapes", func(t *testing.T) {
		var r Rating
		assert.Error(t, json.Unmarshal([]byte(`{}`), &r))
	})
}

func TestCollectionEqual(t *testing.T) {
	a := Collection{{ID: 1, Title: "A", Rating: Unrated}}
	b := Collection{{ID: 1, Title: "A", Rating: Unrated}}
	c := Collection{{ID: 2, Title: "B", Rating: Unrated}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, Collection{}.Equal(nil))
}

func TestCollectionClone(t *testing.T) {
	orig := Collection{{ID: 1, Title: "A"}, {ID: 2, Title: "B"}}
	clone := orig.Clone()

	clone[0].Title = "changed"
	assert.Equal(t, "A", orig[0].Title)
	assert.Nil(t, Collection(nil).Clone())
}

func TestCollectionLookups(t *testing.T) {
	books := Collection{{ID: 10, Title: "X"}, {ID: 20, Title: "Y"}}

	assert.Equal(t, 1, books.IndexOf(20))
	assert.Equal(t, -1, books.IndexOf(99))

	book, ok := books.Find(10)
	require.True(t, ok)
	assert.Equal(t, "X", book.Title)

	_, ok = books.Find(99)
	assert.False(t, ok)
	assert.True(t, books.ContainsID(10))
}

func TestBookJSONFieldNames(t *testing.T) {
	book := Book{
		ID:           1700000000000,
		Title:        "The Stars My Destination",
		Status:       "Reading",
		TrackingType: "chapters",
		CurrentCount: 7,
		Rating:       Unrated,
	}

	data, err := json.Marshal(book)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{"id", "title", "status", "trackingType", "currentCount", "rating", "isFavorite"} {
		assert.Contains(t, decoded, key)
	}
	assert.NotContains(t, decoded, "url")
}
