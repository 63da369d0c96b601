package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/riftapp/rift/internal/model"
)

// ErrInvalidFormat is returned when an import payload is not a JSON
// array of book records. Nothing is mutated when it is returned.
var ErrInvalidFormat = errors.New("import: expected a JSON array of book records")

// Import replaces the collection with the payload and triggers the
// usual post-mutation chain. The payload is fully validated before any
// state changes.
func (t *Tracker) Import(ctx context.Context, data []byte) (int, error) {
	var books model.Collection
	if err := json.Unmarshal(data, &books); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if books == nil {
		books = model.Collection{}
	}

	t.mu.Lock()
	t.books = books
	snapshot := t.books.Clone()
	t.mu.Unlock()

	if err := t.commit(ctx, snapshot); err != nil {
		return len(books), err
	}
	t.logger.Info("collection imported", "books", len(books))
	return len(books), nil
}

// Export returns the pretty-printed collection and a dated download
// filename.
func (t *Tracker) Export() ([]byte, string, error) {
	t.mu.Lock()
	books := t.books.Clone()
	t.mu.Unlock()
	if books == nil {
		books = model.Collection{}
	}

	data, err := json.MarshalIndent(books, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("encode export: %w", err)
	}
	filename := fmt.Sprintf("rift-library-%s.json", t.now().Format("2006-01-02"))
	return data, filename, nil
}
