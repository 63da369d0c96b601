// Package tracker owns the in-memory collection and exposes the book
// mutation operations. Every mutation persists locally first; the
// remote push is a best-effort trailing step that never rolls back or
// blocks the local change.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/riftapp/rift/internal/model"
	"github.com/riftapp/rift/internal/store"
)

// Pusher receives collection snapshots for steady-state sync. The
// synchronizer satisfies it.
type Pusher interface {
	Enqueue(books model.Collection)
}

// noopPusher stands in until a synchronizer is wired.
type noopPusher struct{}

func (noopPusher) Enqueue(model.Collection) {}

// BookInput is the mutation payload. A nil Rating means unrated, as
// does empty or sentinel string input.
type BookInput struct {
	ID           int64         `json:"id,omitempty"`
	Title        string        `json:"title" validate:"required"`
	URL          string        `json:"url,omitempty" validate:"omitempty,url"`
	Status       string        `json:"status"`
	TrackingType string        `json:"trackingType"`
	CurrentCount int           `json:"currentCount" validate:"gte=0"`
	Rating       *model.Rating `json:"rating,omitempty"`
}

// Tracker is the single owner of the collection. The local store and
// the remote document are mirrors of it, never independent sources of
// truth outside the conflict window.
type Tracker struct {
	store  *store.Store
	logger *slog.Logger
	pusher Pusher
	now    func() time.Time

	mu     sync.Mutex
	books  model.Collection
	filter string
}

// New loads the persisted collection and filter into a tracker.
func New(ctx context.Context, st *store.Store, logger *slog.Logger) (*Tracker, error) {
	books, err := st.LoadCollection(ctx)
	if err != nil {
		return nil, fmt.Errorf("hydrate collection: %w", err)
	}
	filter, err := st.LoadFilter(ctx)
	if err != nil {
		return nil, fmt.Errorf("hydrate filter: %w", err)
	}

	return &Tracker{
		store:  st,
		logger: logger,
		pusher: noopPusher{},
		now:    time.Now,
		books:  books,
		filter: filter,
	}, nil
}

// SetPusher wires the steady-state sync target. Called once during
// assembly, before any mutation traffic.
func (t *Tracker) SetPusher(p Pusher) {
	t.pusher = p
}

// Books returns a snapshot of the full collection in insertion order.
func (t *Tracker) Books() model.Collection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.books.Clone()
}

// Find returns the book with the given id.
func (t *Tracker) Find(id int64) (model.Book, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.books.Find(id)
}

// CreateOrUpdate merges the input into an existing record when the id
// matches, force-preserving its favorite flag, or appends a new record
// with isFavorite false and a timestamp-derived id.
func (t *Tracker) CreateOrUpdate(ctx context.Context, input BookInput) (model.Book, error) {
	rating := model.Unrated
	if input.Rating != nil {
		rating = *input.Rating
	}

	book := model.Book{
		ID:           input.ID,
		Title:        strings.TrimSpace(input.Title),
		URL:          input.URL,
		Status:       input.Status,
		TrackingType: input.TrackingType,
		CurrentCount: input.CurrentCount,
		Rating:       rating,
	}

	t.mu.Lock()
	if i := t.books.IndexOf(book.ID); book.ID != 0 && i >= 0 {
		// The favorite flag is explicitly carried over from the prior
		// record; a generic field merge must never alter it.
		book.IsFavorite = t.books[i].IsFavorite
		t.books[i] = book
	} else {
		if book.ID == 0 {
			book.ID = t.now().UnixMilli()
		}
		for t.books.ContainsID(book.ID) {
			book.ID++
		}
		book.IsFavorite = false
		t.books = append(t.books, book)
	}
	snapshot := t.books.Clone()
	t.mu.Unlock()

	if err := t.commit(ctx, snapshot); err != nil {
		return book, err
	}
	return book, nil
}

// ToggleFavorite flips the favorite flag on the matching record. A
// missing id is a no-op and reports found=false.
func (t *Tracker) ToggleFavorite(ctx context.Context, id int64) (model.Book, bool, error) {
	t.mu.Lock()
	i := t.books.IndexOf(id)
	if i < 0 {
		t.mu.Unlock()
		return model.Book{}, false, nil
	}
	t.books[i].IsFavorite = !t.books[i].IsFavorite
	book := t.books[i]
	snapshot := t.books.Clone()
	t.mu.Unlock()

	if err := t.commit(ctx, snapshot); err != nil {
		return book, true, err
	}
	return book, true, nil
}

// Delete removes the matching record. A missing id is a no-op.
func (t *Tracker) Delete(ctx context.Context, id int64) (bool, error) {
	t.mu.Lock()
	i := t.books.IndexOf(id)
	if i < 0 {
		t.mu.Unlock()
		return false, nil
	}
	t.books = append(t.books[:i], t.books[i+1:]...)
	snapshot := t.books.Clone()
	t.mu.Unlock()

	if err := t.commit(ctx, snapshot); err != nil {
		return true, err
	}
	return true, nil
}

// ReplaceAll swaps the collection wholesale and persists it, without
// triggering a remote push. Used when the remote side wins a conflict.
func (t *Tracker) ReplaceAll(ctx context.Context, books model.Collection) error {
	t.mu.Lock()
	t.books = books.Clone()
	snapshot := t.books.Clone()
	t.mu.Unlock()

	if err := t.store.SaveCollection(ctx, snapshot); err != nil {
		return err
	}
	t.logger.Info("collection replaced", "books", len(snapshot))
	return nil
}

// Filter returns the active filter.
func (t *Tracker) Filter() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filter
}

// SetFilter persists the active filter. Filtering only affects the
// rendered view, never the stored sequence.
func (t *Tracker) SetFilter(ctx context.Context, filter string) error {
	t.mu.Lock()
	t.filter = filter
	t.mu.Unlock()
	return t.store.SaveFilter(ctx, filter)
}

// List returns the filtered, searched view of the collection. Order is
// always the underlying insertion order.
func (t *Tracker) List(filter, query string) model.Collection {
	t.mu.Lock()
	books := t.books.Clone()
	t.mu.Unlock()

	query = strings.ToLower(strings.TrimSpace(query))
	out := make(model.Collection, 0, len(books))
	for _, b := range books {
		switch filter {
		case "", "all":
		case "favorites":
			if !b.IsFavorite {
				continue
			}
		default:
			if b.Status != filter {
				continue
			}
		}
		if query != "" && !strings.Contains(strings.ToLower(b.Title), query) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// commit is the tail of every mutation: persist locally, then hand the
// snapshot to the push queue. A storage error is surfaced to the caller
// and the push is skipped; the in-memory state is now ahead of what is
// durably saved.
func (t *Tracker) commit(ctx context.Context, snapshot model.Collection) error {
	if err := t.store.SaveCollection(ctx, snapshot); err != nil {
		t.logger.Error("local persistence failed", "error", err)
		return err
	}
	t.pusher.Enqueue(snapshot)
	return nil
}
