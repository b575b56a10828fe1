// Package ownership implements the single-authorized-caller check used by the
// engine components, including the one-time handoff to the orchestrator.
package ownership

import (
	"fmt"
	"sync"

	"github.com/aretw0/switchyard/pkg/domain"
)

// Owner holds the one address allowed to mutate a component.
// The bootstrap owner may hand the capability off exactly once.
type Owner struct {
	mu        sync.RWMutex
	addr      domain.Address
	handedOff bool
}

// New creates an Owner held by bootstrap.
func New(bootstrap domain.Address) *Owner {
	return &Owner{addr: bootstrap}
}

// Require returns domain.ErrUnauthorized unless caller is the current owner.
func (o *Owner) Require(caller domain.Address) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if caller != o.addr {
		return fmt.Errorf("%w: %s is not the owner", domain.ErrUnauthorized, caller)
	}
	return nil
}

// HandOff transfers the capability from caller to next.
func (o *Owner) HandOff(caller, next domain.Address) error {
	if next.IsZero() {
		return fmt.Errorf("%w: handoff to zero address", domain.ErrInvalidReference)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.handedOff {
		return domain.ErrAlreadyHandedOff
	}
	if caller != o.addr {
		return fmt.Errorf("%w: %s is not the owner", domain.ErrUnauthorized, caller)
	}
	o.addr = next
	o.handedOff = true
	return nil
}

// Current returns the owner address.
func (o *Owner) Current() domain.Address {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.addr
}

// HandedOff reports whether the one-time handoff happened.
func (o *Owner) HandedOff() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.handedOff
}
