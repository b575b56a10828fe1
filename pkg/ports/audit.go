package ports

import (
	"context"

	"github.com/aretw0/switchyard/pkg/domain"
)

// AuditSink receives the audit record of every committed transition.
type AuditSink interface {
	Emit(ctx context.Context, ev domain.TransitionEvent) error
}

// PauseSwitch is the administrative circuit breaker consulted before every transition.
// It is toggled by a guardian outside the engine.
type PauseSwitch interface {
	Paused(ctx context.Context) (bool, error)
}
