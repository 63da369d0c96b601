// Package sync reconciles the local store with the remote document and
// keeps both in agreement after every mutation.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/riftapp/rift/internal/metrics"
	"github.com/riftapp/rift/internal/model"
	"github.com/riftapp/rift/internal/store"
)

// Choice is the user's answer to a conflict prompt. There is no
// automatic merge: the outcome is exclusively one of these two.
type Choice string

const (
	ChoiceLocal  Choice = "local"
	ChoiceRemote Choice = "remote"
)

// Status of the synchronizer as surfaced to the presentation layer.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusConflict Status = "conflict"
)

var (
	// ErrNoConflict is returned when a resolution arrives without a
	// pending conflict.
	ErrNoConflict = errors.New("sync: no conflict pending")

	// ErrConflictPending is returned when reconciliation is requested
	// while an earlier conflict still awaits an answer.
	ErrConflictPending = errors.New("sync: conflict awaiting resolution")
)

// RemoteStore is the transport surface the synchronizer needs.
type RemoteStore interface {
	Download(ctx context.Context) (model.Collection, error)
	Upload(ctx context.Context, books model.Collection) error
}

// sessionState reports whether a remote session is live.
type sessionState interface {
	Authenticated() bool
}

// Conflict holds both diverging collections while the user decides.
type Conflict struct {
	Local  model.Collection
	Remote model.Collection
}

// Synchronizer reconciles local and remote state. Initial
// reconciliation runs once per authentication event; steady-state
// pushes flow through a single worker that always uploads the latest
// snapshot, so a burst of rapid edits cannot land out of order.
type Synchronizer struct {
	store    *store.Store
	remote   RemoteStore
	sessions sessionState
	logger   *slog.Logger

	// OnApply replaces the in-memory collection when the remote side
	// wins. Assigned during assembly by the tracker.
	OnApply func(ctx context.Context, books model.Collection) error

	mu      sync.Mutex
	pending *Conflict

	pushCh chan model.Collection
	done   chan struct{}
}

// New creates a synchronizer. Call Run to start the push worker.
func New(st *store.Store, remote RemoteStore, sessions sessionState, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		store:    st,
		remote:   remote,
		sessions: sessions,
		logger:   logger,
		pushCh:   make(chan model.Collection, 1),
		done:     make(chan struct{}),
	}
}

// Reconcile runs the initial reconciliation after an authentication
// event. When both sides hold diverging non-empty data it parks a
// conflict for arbitration instead of guessing; everything else is
// resolved without user involvement.
func (s *Synchronizer) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return ErrConflictPending
	}
	s.mu.Unlock()

	remote, err := s.remote.Download(ctx)
	if err != nil {
		return fmt.Errorf("download remote collection: %w", err)
	}
	local, err := s.store.LoadCollection(ctx)
	if err != nil {
		return fmt.Errorf("load local collection: %w", err)
	}

	switch {
	case len(remote) == 0:
		// Nothing on the remote side: initialize it from local. No
		// conflict is possible.
		if err := s.remote.Upload(ctx, local); err != nil {
			return fmt.Errorf("bootstrap remote collection: %w", err)
		}
		s.logger.Info("remote initialized from local", "books", len(local))
		return nil

	case len(local) == 0:
		// Fresh device, existing remote library: adopt it outright. A
		// conflict needs diverging data on both sides.
		if s.OnApply == nil {
			return errors.New("sync: no apply hook configured")
		}
		if err := s.OnApply(ctx, remote); err != nil {
			return fmt.Errorf("adopt remote collection: %w", err)
		}
		s.logger.Info("local initialized from remote", "books", len(remote))
		return nil

	case local.Equal(remote):
		s.logger.Debug("local and remote already consistent", "books", len(local))
		return nil

	default:
		s.mu.Lock()
		s.pending = &Conflict{Local: local.Clone(), Remote: remote.Clone()}
		s.mu.Unlock()
		metrics.ObserveSyncConflict()
		s.logger.Info("sync conflict detected",
			"local_books", len(local),
			"remote_books", len(remote),
		)
		return nil
	}
}

// Pending returns the parked conflict, if any.
func (s *Synchronizer) Pending() *Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	c := *s.pending
	return &c
}

// Status reports the current synchronizer state.
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return StatusConflict
	}
	return StatusIdle
}

// Resolve completes a suspended reconciliation with the user's choice.
// "local" overwrites the remote document wholesale; "remote" replaces
// the local collection wholesale.
func (s *Synchronizer) Resolve(ctx context.Context, choice Choice) error {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending == nil {
		return ErrNoConflict
	}

	switch choice {
	case ChoiceLocal:
		// Local edits may have landed while the conflict was parked, so
		// the upload takes the current collection, not the snapshot
		// captured at detection time.
		local, err := s.store.LoadCollection(ctx)
		if err != nil {
			return fmt.Errorf("load local collection: %w", err)
		}
		if err := s.remote.Upload(ctx, local); err != nil {
			return fmt.Errorf("overwrite remote with local: %w", err)
		}
	case ChoiceRemote:
		if s.OnApply == nil {
			return errors.New("sync: no apply hook configured")
		}
		if err := s.OnApply(ctx, pending.Remote); err != nil {
			return fmt.Errorf("replace local with remote: %w", err)
		}
	default:
		return fmt.Errorf("sync: unknown choice %q", choice)
	}

	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	// Snapshots queued during the conflict window predate the outcome;
	// drop them so they cannot overwrite it.
	select {
	case <-s.pushCh:
	default:
	}
	s.logger.Info("sync conflict resolved", "choice", string(choice))
	return nil
}

// Enqueue schedules a steady-state push of the given snapshot. The
// queue holds only the latest snapshot; older queued snapshots are
// replaced rather than pushed out of order. Never blocks the caller.
func (s *Synchronizer) Enqueue(books model.Collection) {
	snapshot := books.Clone()
	for {
		select {
		case s.pushCh <- snapshot:
			return
		default:
			select {
			case <-s.pushCh:
			default:
			}
		}
	}
}

// Run drains the push queue until ctx is canceled. Push failures are
// logged and counted, never retried automatically, and never affect
// local state.
func (s *Synchronizer) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case books := <-s.pushCh:
			if !s.sessions.Authenticated() {
				s.logger.Debug("skipping push, not authenticated")
				continue
			}
			if s.Status() == StatusConflict {
				// The remote document is an independent source of truth
				// until the user answers; nothing overwrites it before
				// then. Resolution pushes the final state itself.
				s.logger.Debug("holding push during conflict arbitration")
				continue
			}
			if err := s.remote.Upload(ctx, books); err != nil {
				metrics.ObserveSyncPush("error")
				s.logger.Warn("steady-state push failed", "error", err, "books", len(books))
				continue
			}
			metrics.ObserveSyncPush("ok")
			s.logger.Debug("steady-state push complete", "books", len(books))
		}
	}
}

// Wait blocks until the push worker has exited.
func (s *Synchronizer) Wait() {
	<-s.done
}
