package runtime

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/aretw0/switchyard/pkg/domain"
)

type transitionKey struct{}

// transitionMark identifies one TransitionTo call. It is closed when the
// call returns; contexts captured by hooks keep the mark afterwards.
type transitionMark struct {
	done atomic.Bool
}

// withinTransition marks ctx as belonging to a running transition. Hooks
// receive a marked context so callers can recognise a nested invocation.
func withinTransition(ctx context.Context) (context.Context, *transitionMark) {
	m := &transitionMark{}
	return context.WithValue(ctx, transitionKey{}, m), m
}

// InTransition reports whether ctx was derived from a transition, for
// example because it reached a hook target. It stays true after the
// transition returned.
func InTransition(ctx context.Context) bool {
	_, ok := ctx.Value(transitionKey{}).(*transitionMark)
	return ok
}

// ReentryError returns domain.ErrReentrantCall for a context derived from a
// transition and nil otherwise. A hook that outlived its budget gets the
// same error once the transition has finished.
func ReentryError(ctx context.Context) error {
	m, ok := ctx.Value(transitionKey{}).(*transitionMark)
	if !ok {
		return nil
	}
	if m.done.Load() {
		return fmt.Errorf("%w: issued by a hook of a finished transition", domain.ErrReentrantCall)
	}
	return domain.ErrReentrantCall
}
