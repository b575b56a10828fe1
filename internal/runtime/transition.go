package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/switchyard/pkg/domain"
)

// TransitionTo moves the workflow from its current state to target through
// transition id. The checks run in a fixed order and any failure before the
// commit leaves the nonce, the current state and the history untouched.
// Hook failures are absorbed. A call made while another one is running on
// the same Engine, or with a context handed to a hook, fails with
// domain.ErrReentrantCall.
func (e *Engine) TransitionTo(ctx context.Context, caller domain.Address, target domain.StateID, id domain.TransitionID, data []byte) (*domain.TransitionEvent, error) {
	if err := ReentryError(ctx); err != nil {
		return nil, e.reject(ctx, &domain.TransitionError{To: target, TransitionID: id, Actor: caller, Err: err})
	}
	if !e.inProgress.CompareAndSwap(false, true) {
		return nil, e.reject(ctx, &domain.TransitionError{To: target, TransitionID: id, Actor: caller, Err: domain.ErrReentrantCall})
	}
	defer e.inProgress.Store(false)

	// Once past the gate the call runs to completion.
	ctx, mark := withinTransition(context.WithoutCancel(ctx))
	defer mark.done.Store(true)

	terr := &domain.TransitionError{To: target, TransitionID: id, Actor: caller}

	// 1. ready and not paused
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		terr.Err = fmt.Errorf("read snapshot: %w", err)
		return nil, e.reject(ctx, terr)
	}
	if !snap.Initialized {
		terr.Err = domain.ErrNotInitialized
		return nil, e.reject(ctx, terr)
	}
	if !e.sealed.Load() {
		terr.Err = fmt.Errorf("%w: components not handed off", domain.ErrNotInitialized)
		return nil, e.reject(ctx, terr)
	}
	if err := e.checkPaused(ctx); err != nil {
		terr.Err = err
		return nil, e.reject(ctx, terr)
	}

	// 2. current state
	from := snap.Current
	terr.From = from

	// 3. guard-allow entry and adjacency, both required
	if err := e.checkAllowed(ctx, from, target, id); err != nil {
		terr.Err = err
		return nil, e.reject(ctx, terr)
	}

	// 4. role
	if !e.access.CanExecute(ctx, caller, id) {
		role, _ := e.access.TransitionRole(id)
		terr.Err = fmt.Errorf("%w: missing role %s", domain.ErrUnauthorized, role)
		return nil, e.reject(ctx, terr)
	}

	// 5. rule
	if err := e.rules.Check(ctx, id, caller, data); err != nil {
		terr.Err = err
		return nil, e.reject(ctx, terr)
	}

	// 6. pre hooks
	e.hooks.Execute(ctx, id, domain.PhasePre, caller, data)

	// 7. commit
	rec, nonce, err := e.store.CommitTransition(ctx, e.self, domain.TransitionRecord{
		From:         from,
		To:           target,
		Actor:        caller,
		TransitionID: id,
	})
	if err != nil {
		terr.Err = fmt.Errorf("commit: %w", err)
		return nil, e.reject(ctx, terr)
	}

	// 8. post hooks
	e.hooks.Execute(ctx, id, domain.PhasePost, caller, data)

	// 9. audit record
	ev := &domain.TransitionEvent{
		PreviousState: from,
		NewState:      target,
		Actor:         caller,
		TransitionID:  id,
		Timestamp:     rec.Timestamp,
	}
	e.emit(ctx, ev)

	e.logger.Info("transition committed",
		"transition_id", id,
		"from", from.String(),
		"to", target.String(),
		"actor", caller.Hex(),
		"nonce", nonce,
	)
	return ev, nil
}

func (e *Engine) checkPaused(ctx context.Context) error {
	if e.pause == nil {
		return nil
	}
	paused, err := e.pause.Paused(ctx)
	if err != nil {
		// An unreadable switch counts as paused.
		return fmt.Errorf("%w: pause switch: %v", domain.ErrPaused, err)
	}
	if paused {
		return domain.ErrPaused
	}
	return nil
}

func (e *Engine) checkAllowed(ctx context.Context, from, target domain.StateID, id domain.TransitionID) error {
	allowed, err := e.store.IsTransitionAllowed(ctx, from, id)
	if err != nil {
		return fmt.Errorf("read allow table: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: transition %d not enabled from %s", domain.ErrTransitionNotAllowed, id, from)
	}

	edge, err := e.store.IsEdgeAllowed(ctx, from, target)
	if err != nil {
		return fmt.Errorf("read edges: %w", err)
	}
	if !edge {
		return fmt.Errorf("%w: no edge %s -> %s", domain.ErrTransitionNotAllowed, from, target)
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, ev *domain.TransitionEvent) {
	if e.audit != nil {
		if err := e.audit.Emit(ctx, *ev); err != nil {
			e.logger.Error("audit emit failed", "transition_id", ev.TransitionID, "err", err)
		}
	}
	if e.events.OnTransition != nil {
		e.events.OnTransition(ctx, ev)
	}
}

func (e *Engine) reject(ctx context.Context, terr *domain.TransitionError) error {
	level := e.logger.Info
	if !errors.Is(terr.Err, domain.ErrReentrantCall) && !isTaxonomy(terr.Err) {
		level = e.logger.Error
	}
	level("transition rejected",
		"transition_id", terr.TransitionID,
		"from", terr.From.String(),
		"to", terr.To.String(),
		"actor", terr.Actor.Hex(),
		"err", terr.Err,
	)
	if e.events.OnRejected != nil {
		e.events.OnRejected(ctx, terr)
	}
	return terr
}

var taxonomy = []error{
	domain.ErrNotInitialized,
	domain.ErrTransitionNotAllowed,
	domain.ErrUnauthorized,
	domain.ErrValidationFailed,
	domain.ErrPaused,
}

func isTaxonomy(err error) bool {
	for _, t := range taxonomy {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
