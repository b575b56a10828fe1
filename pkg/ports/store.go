package ports

import (
	"context"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
)

// StateBackend persists the workflow graph and its execution pointer.
// It performs no authorization and no graph validation; those belong to the
// statestore component that wraps it. Implementations must be safe for
// concurrent use.
type StateBackend interface {
	// PutState registers s. created is false if s was already present.
	PutState(ctx context.Context, s domain.StateID) (created bool, err error)

	// HasState reports whether s is registered.
	HasState(ctx context.Context, s domain.StateID) (bool, error)

	// ListStates returns registered states in registration order.
	ListStates(ctx context.Context) ([]domain.StateID, error)

	// AppendEdge appends to to the adjacency list of from. Duplicates are kept.
	AppendEdge(ctx context.Context, from, to domain.StateID) error

	// Edges returns the adjacency list of from in append order.
	Edges(ctx context.Context, from domain.StateID) ([]domain.StateID, error)

	// SetAllowed writes the guard-allow entry for (s, id).
	SetAllowed(ctx context.Context, s domain.StateID, id domain.TransitionID, allowed bool) error

	// Allowed reads the guard-allow entry for (s, id).
	Allowed(ctx context.Context, s domain.StateID, id domain.TransitionID) (bool, error)

	// Snapshot returns the current pointer, nonce and last-transition time.
	Snapshot(ctx context.Context) (domain.Snapshot, error)

	// InitPointer sets the pointer without touching the nonce.
	// Returns domain.ErrAlreadyInitialized if the pointer was set before.
	InitPointer(ctx context.Context, s domain.StateID, at time.Time) error

	// SetPointer moves the pointer, stamps at and increments the nonce.
	SetPointer(ctx context.Context, s domain.StateID, at time.Time) (nonce uint64, err error)

	// PutHistory writes rec at index.
	PutHistory(ctx context.Context, index uint64, rec domain.TransitionRecord) error

	// Commit atomically moves the pointer to rec.To, increments the nonce and
	// writes rec at domain.HistoryIndex(nonce).
	Commit(ctx context.Context, rec domain.TransitionRecord) (nonce uint64, err error)

	// History reads the record at index.
	// Returns domain.ErrHistoryNotFound if nothing was written there.
	History(ctx context.Context, index uint64) (domain.TransitionRecord, error)
}
