package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
)

// Initialize sets the first current state. It succeeds at most once.
func (e *Engine) Initialize(ctx context.Context, caller domain.Address, state domain.StateID) error {
	as, err := e.componentCaller(caller)
	if err != nil {
		return err
	}
	if err := e.store.Initialize(ctx, as, state); err != nil {
		return err
	}
	e.logger.Info("workflow initialized", "state", state.String())
	return nil
}

// AllowTransition adds id to the guard-allow table of state.
func (e *Engine) AllowTransition(ctx context.Context, caller domain.Address, state domain.StateID, id domain.TransitionID) error {
	return e.setAllowed(ctx, caller, state, id, true)
}

// DisallowTransition removes id from the guard-allow table of state.
func (e *Engine) DisallowTransition(ctx context.Context, caller domain.Address, state domain.StateID, id domain.TransitionID) error {
	return e.setAllowed(ctx, caller, state, id, false)
}

func (e *Engine) setAllowed(ctx context.Context, caller domain.Address, state domain.StateID, id domain.TransitionID, allowed bool) error {
	as, err := e.componentCaller(caller)
	if err != nil {
		return err
	}
	ok, err := e.store.IsRegistered(ctx, state)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is not registered", domain.ErrInvalidState, state)
	}
	return e.store.SetTransitionAllowed(ctx, as, state, id, allowed)
}

// RegisterState adds a state to the graph.
func (e *Engine) RegisterState(ctx context.Context, caller domain.Address, state domain.StateID) error {
	as, err := e.componentCaller(caller)
	if err != nil {
		return err
	}
	return e.store.RegisterState(ctx, as, state)
}

// AddEdge appends to to the adjacency list of from.
func (e *Engine) AddEdge(ctx context.Context, caller domain.Address, from, to domain.StateID) error {
	as, err := e.componentCaller(caller)
	if err != nil {
		return err
	}
	return e.store.AddEdge(ctx, as, from, to)
}

// Grant gives role to account.
func (e *Engine) Grant(ctx context.Context, caller, account domain.Address, role domain.Role) error {
	as, err := e.componentCaller(caller)
	if err != nil {
		return err
	}
	return e.access.Grant(ctx, as, account, role)
}

// Revoke removes role from account.
func (e *Engine) Revoke(ctx context.Context, caller, account domain.Address, role domain.Role) error {
	as, err := e.componentCaller(caller)
	if err != nil {
		return err
	}
	return e.access.Revoke(ctx, as, account, role)
}

// BatchGrant grants roles[i] to accounts[i] for every i.
func (e *Engine) BatchGrant(ctx context.Context, caller domain.Address, accounts []domain.Address, roles []domain.Role) error {
	as, err := e.componentCaller(caller)
	if err != nil {
		return err
	}
	return e.access.BatchGrant(ctx, as, accounts, roles)
}

// SetAdminRole changes the role that administers role.
func (e *Engine) SetAdminRole(ctx context.Context, caller domain.Address, role, admin domain.Role) error {
	as, err := e.componentCaller(caller)
	if err != nil {
		return err
	}
	return e.access.SetAdminRole(ctx, as, role, admin)
}

// SetTransitionRole requires role for id. The zero role clears the requirement.
func (e *Engine) SetTransitionRole(ctx context.Context, caller domain.Address, id domain.TransitionID, role domain.Role) error {
	as, err := e.componentCaller(caller)
	if err != nil {
		return err
	}
	return e.access.SetTransitionRole(ctx, as, id, role)
}

// SetRule installs the guard of id.
func (e *Engine) SetRule(ctx context.Context, caller domain.Address, id domain.TransitionID, rule domain.Rule) error {
	as, err := e.componentCaller(caller)
	if err != nil {
		return err
	}
	return e.rules.SetRule(ctx, as, id, rule)
}

// DeactivateRule disables the guard of id.
func (e *Engine) DeactivateRule(ctx context.Context, caller domain.Address, id domain.TransitionID) error {
	as, err := e.componentCaller(caller)
	if err != nil {
		return err
	}
	return e.rules.Deactivate(ctx, as, id)
}

// SetUnlockTime sets the per-actor unlock time of a timelocked id.
func (e *Engine) SetUnlockTime(ctx context.Context, caller domain.Address, id domain.TransitionID, actor domain.Address, at time.Time) error {
	as, err := e.componentCaller(caller)
	if err != nil {
		return err
	}
	return e.rules.SetUnlockTime(ctx, as, id, actor, at)
}

// RegisterHook appends target to the hooks of (id, phase).
func (e *Engine) RegisterHook(ctx context.Context, caller domain.Address, id domain.TransitionID, phase domain.Phase, target domain.Address) error {
	as, err := e.componentCaller(caller)
	if err != nil {
		return err
	}
	return e.hooks.Register(ctx, as, id, phase, target)
}

// RemoveHook swap-removes target from the hooks of (id, phase).
func (e *Engine) RemoveHook(ctx context.Context, caller domain.Address, id domain.TransitionID, phase domain.Phase, target domain.Address) error {
	as, err := e.componentCaller(caller)
	if err != nil {
		return err
	}
	return e.hooks.Remove(ctx, as, id, phase, target)
}

// ClearHooks empties the hooks of (id, phase).
func (e *Engine) ClearHooks(ctx context.Context, caller domain.Address, id domain.TransitionID, phase domain.Phase) error {
	as, err := e.componentCaller(caller)
	if err != nil {
		return err
	}
	return e.hooks.Clear(ctx, as, id, phase)
}
