package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aretw0/switchyard/pkg/domain"
)

// AuditLog implements ports.AuditSink by keeping events in memory.
type AuditLog struct {
	mu     sync.RWMutex
	events []domain.TransitionEvent
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (l *AuditLog) Emit(ctx context.Context, ev domain.TransitionEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

// Events returns a copy of the emitted events in emission order.
func (l *AuditLog) Events() []domain.TransitionEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.TransitionEvent(nil), l.events...)
}

// Switch implements ports.PauseSwitch with an in-process flag.
type Switch struct {
	paused atomic.Bool
}

// NewSwitch creates an unpaused switch.
func NewSwitch() *Switch {
	return &Switch{}
}

func (s *Switch) Paused(ctx context.Context) (bool, error) {
	return s.paused.Load(), nil
}

// Set toggles the flag.
func (s *Switch) Set(paused bool) {
	s.paused.Store(paused)
}
