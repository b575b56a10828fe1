package switchyard

import (
	"context"

	"github.com/aretw0/switchyard/pkg/domain"
)

// Queries never take the writer lock.

// CurrentState returns the current state, or the zero id before Initialize.
func (e *Engine) CurrentState(ctx context.Context) (domain.StateID, error) {
	return e.runtime.CurrentState(ctx)
}

// IsInitialized reports whether the workflow has an initial state.
func (e *Engine) IsInitialized(ctx context.Context) (bool, error) {
	return e.runtime.IsInitialized(ctx)
}

// Snapshot reads the current state, nonce and last transition time in one call.
func (e *Engine) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	return e.runtime.Snapshot(ctx)
}

// Nonce returns the number of committed transitions.
func (e *Engine) Nonce(ctx context.Context) (uint64, error) {
	return e.runtime.Nonce(ctx)
}

// History returns the record at index. Index 0 is the first transition.
func (e *Engine) History(ctx context.Context, index uint64) (domain.TransitionRecord, error) {
	return e.runtime.History(ctx, index)
}

// HistoryRange returns up to limit records starting at index from.
func (e *Engine) HistoryRange(ctx context.Context, from, limit uint64) ([]domain.TransitionRecord, error) {
	nonce, err := e.runtime.Nonce(ctx)
	if err != nil {
		return nil, err
	}
	out := []domain.TransitionRecord{}
	for i := from; i < nonce && uint64(len(out)) < limit; i++ {
		rec, err := e.runtime.History(ctx, i)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// IsTransitionAllowed reports whether id is enabled from state. Adjacency
// is checked separately by IsEdgeAllowed.
func (e *Engine) IsTransitionAllowed(ctx context.Context, state domain.StateID, id domain.TransitionID) (bool, error) {
	return e.runtime.IsTransitionAllowed(ctx, state, id)
}

// IsEdgeAllowed reports whether to is adjacent to from.
func (e *Engine) IsEdgeAllowed(ctx context.Context, from, to domain.StateID) (bool, error) {
	return e.runtime.IsEdgeAllowed(ctx, from, to)
}

// States lists the registered states in registration order.
func (e *Engine) States(ctx context.Context) ([]domain.StateID, error) {
	return e.runtime.States(ctx)
}

// Edges returns the adjacency list of from, duplicates included.
func (e *Engine) Edges(ctx context.Context, from domain.StateID) ([]domain.StateID, error) {
	return e.runtime.Edges(ctx, from)
}

// AvailableTransitions lists the distinct targets adjacent to the current state.
func (e *Engine) AvailableTransitions(ctx context.Context) ([]domain.StateID, error) {
	return e.runtime.AvailableTransitions(ctx)
}

// Paused reports whether transitions are refused. An unreadable switch counts as paused.
func (e *Engine) Paused(ctx context.Context) bool {
	return e.runtime.Paused(ctx)
}

// HasRole reports whether account holds role.
func (e *Engine) HasRole(ctx context.Context, account domain.Address, role domain.Role) bool {
	return e.runtime.HasRole(ctx, account, role)
}

// CanExecute reports whether account passes the role check of id. An id
// without a role is open to everyone.
func (e *Engine) CanExecute(ctx context.Context, account domain.Address, id domain.TransitionID) bool {
	return e.runtime.CanExecute(ctx, account, id)
}

// TransitionRole returns the role required by id, if one is set.
func (e *Engine) TransitionRole(id domain.TransitionID) (domain.Role, bool) {
	return e.runtime.TransitionRole(id)
}

// Rule returns the guard of id, if one is set.
func (e *Engine) Rule(id domain.TransitionID) (domain.Rule, bool) {
	return e.runtime.Rule(id)
}

// Validate evaluates the guard of id for actor and proof without moving the workflow.
func (e *Engine) Validate(ctx context.Context, id domain.TransitionID, actor domain.Address, proof []byte) bool {
	return e.runtime.Validate(ctx, id, actor, proof)
}

// Hooks returns the targets of id in phase in call order.
func (e *Engine) Hooks(id domain.TransitionID, phase domain.Phase) []domain.Address {
	return e.runtime.Hooks(id, phase)
}

// HookCount returns the number of hooks of id in phase.
func (e *Engine) HookCount(id domain.TransitionID, phase domain.Phase) int {
	return e.runtime.HookCount(id, phase)
}
