package statestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/internal/ownership"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
)

// Store is the StateStore component: the registered graph, the current-state
// pointer, the nonce and the append-only history.
// Every mutator is restricted to a single authorized caller.
type Store struct {
	backend ports.StateBackend
	owner   *ownership.Owner
	clock   func() time.Time
	logger  *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithLogger configures a logger for the Store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Store persisted in backend and owned by admin.
func New(backend ports.StateBackend, admin domain.Address, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		owner:   ownership.New(admin),
		clock:   time.Now,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandOff grants exclusive write access to next. It succeeds once.
func (s *Store) HandOff(ctx context.Context, caller, next domain.Address) error {
	if err := s.owner.HandOff(caller, next); err != nil {
		return err
	}
	s.logger.Info("state store handed off", "owner", next)
	return nil
}

// Owner returns the address currently allowed to mutate the store.
func (s *Store) Owner() domain.Address {
	return s.owner.Current()
}

// RegisterState adds a new state. The state set is append-only.
func (s *Store) RegisterState(ctx context.Context, caller domain.Address, id domain.StateID) error {
	if err := s.owner.Require(caller); err != nil {
		return err
	}
	if id.IsZero() {
		return fmt.Errorf("%w: zero state id", domain.ErrInvalidState)
	}

	created, err := s.backend.PutState(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to register state %s: %w", id, err)
	}
	if !created {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateState, id)
	}
	return nil
}

// AddEdge appends to to the adjacency list of from. Both endpoints must be registered.
func (s *Store) AddEdge(ctx context.Context, caller domain.Address, from, to domain.StateID) error {
	if err := s.owner.Require(caller); err != nil {
		return err
	}
	for _, id := range []domain.StateID{from, to} {
		if err := s.requireRegistered(ctx, id); err != nil {
			return err
		}
	}

	if err := s.backend.AppendEdge(ctx, from, to); err != nil {
		return fmt.Errorf("failed to add edge %s->%s: %w", from, to, err)
	}
	return nil
}

// SetTransitionAllowed writes the guard-allow entry for (state, id).
// The entry is independent of the adjacency list.
func (s *Store) SetTransitionAllowed(ctx context.Context, caller domain.Address, state domain.StateID, id domain.TransitionID, allowed bool) error {
	if err := s.owner.Require(caller); err != nil {
		return err
	}
	if err := s.requireRegistered(ctx, state); err != nil {
		return err
	}
	return s.backend.SetAllowed(ctx, state, id, allowed)
}

// Initialize sets the first current state without incrementing the nonce.
func (s *Store) Initialize(ctx context.Context, caller domain.Address, id domain.StateID) error {
	if err := s.owner.Require(caller); err != nil {
		return err
	}
	if err := s.requireRegistered(ctx, id); err != nil {
		return err
	}
	return s.backend.InitPointer(ctx, id, s.clock())
}

// SetCurrentState moves the pointer, stamps the transition time and increments the nonce.
func (s *Store) SetCurrentState(ctx context.Context, caller domain.Address, id domain.StateID) (uint64, error) {
	if err := s.owner.Require(caller); err != nil {
		return 0, err
	}
	if err := s.requireRegistered(ctx, id); err != nil {
		return 0, err
	}
	return s.backend.SetPointer(ctx, id, s.clock())
}

// RecordHistory appends a record keyed by the current (post-increment) nonce.
func (s *Store) RecordHistory(ctx context.Context, caller domain.Address, from, to domain.StateID, actor domain.Address, id domain.TransitionID) error {
	if err := s.owner.Require(caller); err != nil {
		return err
	}
	snap, err := s.backend.Snapshot(ctx)
	if err != nil {
		return err
	}

	rec := domain.TransitionRecord{
		From:         from,
		To:           to,
		Actor:        actor,
		TransitionID: id,
		Timestamp:    s.clock(),
	}
	return s.backend.PutHistory(ctx, domain.HistoryIndex(snap.Nonce), rec)
}

// CommitTransition is SetCurrentState followed by RecordHistory as one backend operation.
// The record timestamp is stamped by the store.
func (s *Store) CommitTransition(ctx context.Context, caller domain.Address, rec domain.TransitionRecord) (domain.TransitionRecord, uint64, error) {
	if err := s.owner.Require(caller); err != nil {
		return rec, 0, err
	}
	if err := s.requireRegistered(ctx, rec.To); err != nil {
		return rec, 0, err
	}

	rec.Timestamp = s.clock()
	n, err := s.backend.Commit(ctx, rec)
	if err != nil {
		return rec, 0, fmt.Errorf("failed to commit transition: %w", err)
	}
	return rec, n, nil
}

// IsEdgeAllowed scans the adjacency list of from for to.
func (s *Store) IsEdgeAllowed(ctx context.Context, from, to domain.StateID) (bool, error) {
	edges, err := s.backend.Edges(ctx, from)
	if err != nil {
		return false, err
	}
	for _, e := range edges {
		if e == to {
			return true, nil
		}
	}
	return false, nil
}

// IsTransitionAllowed reads the guard-allow entry for (state, id).
func (s *Store) IsTransitionAllowed(ctx context.Context, state domain.StateID, id domain.TransitionID) (bool, error) {
	return s.backend.Allowed(ctx, state, id)
}

// IsRegistered reports whether id is a registered state.
func (s *Store) IsRegistered(ctx context.Context, id domain.StateID) (bool, error) {
	return s.backend.HasState(ctx, id)
}

// States lists registered states in registration order.
func (s *Store) States(ctx context.Context) ([]domain.StateID, error) {
	return s.backend.ListStates(ctx)
}

// Edges returns the adjacency list of from.
func (s *Store) Edges(ctx context.Context, from domain.StateID) ([]domain.StateID, error) {
	return s.backend.Edges(ctx, from)
}

// Snapshot returns pointer, nonce and last transition time.
func (s *Store) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	return s.backend.Snapshot(ctx)
}

// CurrentState returns the pointer. It is the zero id before initialization.
func (s *Store) CurrentState(ctx context.Context) (domain.StateID, error) {
	snap, err := s.backend.Snapshot(ctx)
	return snap.Current, err
}

// Nonce returns the number of committed changes.
func (s *Store) Nonce(ctx context.Context) (uint64, error) {
	snap, err := s.backend.Snapshot(ctx)
	return snap.Nonce, err
}

// History reads the record at index.
func (s *Store) History(ctx context.Context, index uint64) (domain.TransitionRecord, error) {
	return s.backend.History(ctx, index)
}

func (s *Store) requireRegistered(ctx context.Context, id domain.StateID) error {
	ok, err := s.backend.HasState(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is not registered", domain.ErrInvalidState, id)
	}
	return nil
}
