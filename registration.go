package switchyard

import (
	"context"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
)

// Initialize sets the first current state. It succeeds at most once.
func (e *Engine) Initialize(ctx context.Context, caller domain.Address, state domain.StateID) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.Initialize(ctx, caller, state)
	})
}

// AllowTransition enables id from state in the guard-allow table.
func (e *Engine) AllowTransition(ctx context.Context, caller domain.Address, state domain.StateID, id domain.TransitionID) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.AllowTransition(ctx, caller, state, id)
	})
}

// DisallowTransition removes id from the guard-allow table of state.
func (e *Engine) DisallowTransition(ctx context.Context, caller domain.Address, state domain.StateID, id domain.TransitionID) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.DisallowTransition(ctx, caller, state, id)
	})
}

// RegisterState adds state to the graph. Registering a state twice fails
// with domain.ErrDuplicateState.
func (e *Engine) RegisterState(ctx context.Context, caller domain.Address, state domain.StateID) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.RegisterState(ctx, caller, state)
	})
}

// AddEdge appends to to the adjacency list of from. Both states must be registered.
func (e *Engine) AddEdge(ctx context.Context, caller domain.Address, from, to domain.StateID) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.AddEdge(ctx, caller, from, to)
	})
}

// Grant gives role to account. Only the engine admin may call it.
func (e *Engine) Grant(ctx context.Context, caller, account domain.Address, role domain.Role) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.Grant(ctx, caller, account, role)
	})
}

// Revoke removes role from account.
func (e *Engine) Revoke(ctx context.Context, caller, account domain.Address, role domain.Role) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.Revoke(ctx, caller, account, role)
	})
}

// BatchGrant grants roles[i] to accounts[i]. The slices must have equal length.
func (e *Engine) BatchGrant(ctx context.Context, caller domain.Address, accounts []domain.Address, roles []domain.Role) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.BatchGrant(ctx, caller, accounts, roles)
	})
}

// SetAdminRole makes admin the role that may grant and revoke role.
func (e *Engine) SetAdminRole(ctx context.Context, caller domain.Address, role, admin domain.Role) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.SetAdminRole(ctx, caller, role, admin)
	})
}

// SetTransitionRole requires role for id. The zero role clears the requirement.
func (e *Engine) SetTransitionRole(ctx context.Context, caller domain.Address, id domain.TransitionID, role domain.Role) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.SetTransitionRole(ctx, caller, id, role)
	})
}

// SetRule installs the guard checked at step 5 of every transition of id.
func (e *Engine) SetRule(ctx context.Context, caller domain.Address, id domain.TransitionID, rule domain.Rule) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.SetRule(ctx, caller, id, rule)
	})
}

// DeactivateRule keeps the guard of id but stops enforcing it.
func (e *Engine) DeactivateRule(ctx context.Context, caller domain.Address, id domain.TransitionID) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.DeactivateRule(ctx, caller, id)
	})
}

// SetUnlockTime sets the time from which actor may run the timelocked id.
func (e *Engine) SetUnlockTime(ctx context.Context, caller domain.Address, id domain.TransitionID, actor domain.Address, at time.Time) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.SetUnlockTime(ctx, caller, id, actor, at)
	})
}

// RegisterHook appends target to the hooks of id in phase. Hooks run in
// registration order.
func (e *Engine) RegisterHook(ctx context.Context, caller domain.Address, id domain.TransitionID, phase domain.Phase, target domain.Address) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.RegisterHook(ctx, caller, id, phase, target)
	})
}

// RemoveHook removes target from the hooks of id in phase. The last hook
// takes its slot, so order is not preserved.
func (e *Engine) RemoveHook(ctx context.Context, caller domain.Address, id domain.TransitionID, phase domain.Phase, target domain.Address) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.RemoveHook(ctx, caller, id, phase, target)
	})
}

// ClearHooks removes every hook of id in phase.
func (e *Engine) ClearHooks(ctx context.Context, caller domain.Address, id domain.TransitionID, phase domain.Phase) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.ClearHooks(ctx, caller, id, phase)
	})
}
