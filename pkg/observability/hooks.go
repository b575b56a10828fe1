package observability

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/aretw0/switchyard/pkg/domain"
)

// Chain returns LifecycleHooks that call every non-nil callback of hs in order.
func Chain(hs ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, ev *domain.TransitionEvent) {
			for _, h := range hs {
				if h.OnTransition != nil {
					h.OnTransition(ctx, ev)
				}
			}
		},
		OnRejected: func(ctx context.Context, err *domain.TransitionError) {
			for _, h := range hs {
				if h.OnRejected != nil {
					h.OnRejected(ctx, err)
				}
			}
		},
		OnHookReturn: func(ctx context.Context, ev *domain.HookEvent) {
			for _, h := range hs {
				if h.OnHookReturn != nil {
					h.OnHookReturn(ctx, ev)
				}
			}
		},
	}
}

// LoggingHooks logs every lifecycle event at debug level.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, ev *domain.TransitionEvent) {
			logger.DebugContext(ctx, "transition",
				"transition_id", ev.TransitionID,
				"from", ev.PreviousState.String(),
				"to", ev.NewState.String(),
				"actor", ev.Actor.Hex(),
			)
		},
		OnRejected: func(ctx context.Context, err *domain.TransitionError) {
			logger.DebugContext(ctx, "rejected",
				"transition_id", err.TransitionID,
				"reason", Reason(err),
				"err", err.Err,
			)
		},
		OnHookReturn: func(ctx context.Context, ev *domain.HookEvent) {
			logger.DebugContext(ctx, "hook_return",
				"transition_id", ev.TransitionID,
				"phase", ev.Phase.String(),
				"target", ev.Target.Hex(),
				"duration", ev.Duration,
				"failed", ev.Failed(),
			)
		},
	}
}

func formatID(id domain.TransitionID) string {
	return strconv.FormatUint(uint64(id), 10)
}
