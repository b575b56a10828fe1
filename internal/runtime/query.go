package runtime

import (
	"context"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
)

// CurrentState returns the current state. The zero id means not initialized.
func (e *Engine) CurrentState(ctx context.Context) (domain.StateID, error) {
	return e.store.CurrentState(ctx)
}

// IsInitialized reports whether Initialize succeeded.
func (e *Engine) IsInitialized(ctx context.Context) (bool, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return snap.Initialized, nil
}

// Snapshot returns the pointer, nonce and last transition time together.
func (e *Engine) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	return e.store.Snapshot(ctx)
}

// Nonce returns the number of committed transitions.
func (e *Engine) Nonce(ctx context.Context) (uint64, error) {
	return e.store.Nonce(ctx)
}

// LastTransitionAt returns the time of the last pointer change.
func (e *Engine) LastTransitionAt(ctx context.Context) (time.Time, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return snap.LastTransitionAt, nil
}

// History returns the record at index. Index 0 is the first transition.
func (e *Engine) History(ctx context.Context, index uint64) (domain.TransitionRecord, error) {
	return e.store.History(ctx, index)
}

// IsTransitionAllowed reads the guard-allow table. Adjacency is not consulted.
func (e *Engine) IsTransitionAllowed(ctx context.Context, state domain.StateID, id domain.TransitionID) (bool, error) {
	return e.store.IsTransitionAllowed(ctx, state, id)
}

// IsEdgeAllowed reads the adjacency list of from.
func (e *Engine) IsEdgeAllowed(ctx context.Context, from, to domain.StateID) (bool, error) {
	return e.store.IsEdgeAllowed(ctx, from, to)
}

// States lists registered states in registration order.
func (e *Engine) States(ctx context.Context) ([]domain.StateID, error) {
	return e.store.States(ctx)
}

// Edges returns the adjacency list of from, duplicates included.
func (e *Engine) Edges(ctx context.Context, from domain.StateID) ([]domain.StateID, error) {
	return e.store.Edges(ctx, from)
}

// AvailableTransitions returns the distinct targets reachable from the
// current state in adjacency order.
func (e *Engine) AvailableTransitions(ctx context.Context) ([]domain.StateID, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if !snap.Initialized {
		return nil, domain.ErrNotInitialized
	}
	edges, err := e.store.Edges(ctx, snap.Current)
	if err != nil {
		return nil, err
	}

	seen := make(map[domain.StateID]struct{}, len(edges))
	out := make([]domain.StateID, 0, len(edges))
	for _, to := range edges {
		if _, ok := seen[to]; ok {
			continue
		}
		seen[to] = struct{}{}
		out = append(out, to)
	}
	return out, nil
}

// Paused reads the pause switch. An unreadable switch reports paused.
func (e *Engine) Paused(ctx context.Context) bool {
	return e.checkPaused(ctx) != nil
}

func (e *Engine) HasRole(ctx context.Context, account domain.Address, role domain.Role) bool {
	return e.access.HasRole(ctx, account, role)
}

func (e *Engine) CanExecute(ctx context.Context, account domain.Address, id domain.TransitionID) bool {
	return e.access.CanExecute(ctx, account, id)
}

// TransitionRole returns the role required for id, if any.
func (e *Engine) TransitionRole(id domain.TransitionID) (domain.Role, bool) {
	return e.access.TransitionRole(id)
}

// Rule returns the guard of id.
func (e *Engine) Rule(id domain.TransitionID) (domain.Rule, bool) {
	return e.rules.Rule(id)
}

// Validate evaluates the guard of id without running a transition.
func (e *Engine) Validate(ctx context.Context, id domain.TransitionID, actor domain.Address, proof []byte) bool {
	return e.rules.Validate(ctx, id, actor, proof)
}

func (e *Engine) Hooks(id domain.TransitionID, phase domain.Phase) []domain.Address {
	return e.hooks.Hooks(id, phase)
}

func (e *Engine) HookCount(id domain.TransitionID, phase domain.Phase) int {
	return e.hooks.Count(id, phase)
}
