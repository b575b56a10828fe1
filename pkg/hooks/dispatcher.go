package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/internal/ownership"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
)

// MaxHooks bounds the hook list of a single (transition id, phase) pair.
const MaxHooks = 10

// DefaultBudget is the time a single hook call may take.
const DefaultBudget = 2 * time.Second

type listKey struct {
	id    domain.TransitionID
	phase domain.Phase
}

// Dispatcher is the HookDispatcher component. Hooks run in list order and a
// failing hook never stops the ones after it.
type Dispatcher struct {
	mu    sync.RWMutex
	lists map[listKey][]domain.Address

	owner   *ownership.Owner
	invoker ports.Invoker
	budget  time.Duration
	logger  *slog.Logger
	onCall  func(context.Context, *domain.HookEvent)
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithInvoker sets the transport used to reach hook targets.
func WithInvoker(inv ports.Invoker) Option {
	return func(d *Dispatcher) {
		d.invoker = inv
	}
}

// WithBudget overrides the per-hook time budget.
func WithBudget(budget time.Duration) Option {
	return func(d *Dispatcher) {
		if budget > 0 {
			d.budget = budget
		}
	}
}

// WithLogger configures a logger for the Dispatcher.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithObserver registers a callback that receives every hook outcome.
func WithObserver(fn func(context.Context, *domain.HookEvent)) Option {
	return func(d *Dispatcher) {
		d.onCall = fn
	}
}

// New creates a Dispatcher administered by admin.
func New(admin domain.Address, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		lists:  make(map[listKey][]domain.Address),
		owner:  ownership.New(admin),
		budget: DefaultBudget,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandOff transfers the mutation capability to next, once.
func (d *Dispatcher) HandOff(ctx context.Context, caller, next domain.Address) error {
	return d.owner.HandOff(caller, next)
}

// Owner returns the address currently allowed to mutate hook lists.
func (d *Dispatcher) Owner() domain.Address {
	return d.owner.Current()
}

// Register appends target to the hook list of (id, phase).
func (d *Dispatcher) Register(ctx context.Context, caller domain.Address, id domain.TransitionID, phase domain.Phase, target domain.Address) error {
	if err := d.owner.Require(caller); err != nil {
		return err
	}
	if target.IsZero() {
		return fmt.Errorf("%w: hook target is the zero address", domain.ErrInvalidReference)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	k := listKey{id, phase}
	if len(d.lists[k]) >= MaxHooks {
		return fmt.Errorf("%w: transition %d %s", domain.ErrHookLimitReached, id, phase)
	}
	d.lists[k] = append(d.lists[k], target)
	return nil
}

// Remove deletes the first occurrence of target by moving the last hook into
// its slot. The relative order of the other hooks is therefore not kept.
func (d *Dispatcher) Remove(ctx context.Context, caller domain.Address, id domain.TransitionID, phase domain.Phase, target domain.Address) error {
	if err := d.owner.Require(caller); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	k := listKey{id, phase}
	list := d.lists[k]
	for i, h := range list {
		if h != target {
			continue
		}
		last := len(list) - 1
		list[i] = list[last]
		list = list[:last]
		if len(list) == 0 {
			delete(d.lists, k)
		} else {
			d.lists[k] = list
		}
		return nil
	}
	return fmt.Errorf("%w: %s on transition %d %s", domain.ErrHookNotFound, target, id, phase)
}

// Clear empties the hook list of (id, phase).
func (d *Dispatcher) Clear(ctx context.Context, caller domain.Address, id domain.TransitionID, phase domain.Phase) error {
	if err := d.owner.Require(caller); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lists, listKey{id, phase})
	return nil
}

// Hooks returns a copy of the hook list of (id, phase).
func (d *Dispatcher) Hooks(id domain.TransitionID, phase domain.Phase) []domain.Address {
	d.mu.RLock()
	defer d.mu.RUnlock()
	list := d.lists[listKey{id, phase}]
	out := make([]domain.Address, len(list))
	copy(out, list)
	return out
}

// Count returns the number of hooks registered for (id, phase).
func (d *Dispatcher) Count(id domain.TransitionID, phase domain.Phase) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.lists[listKey{id, phase}])
}

// Execute calls every hook of (id, phase) in order. Failures are logged and
// reported to the observer; they are never returned.
func (d *Dispatcher) Execute(ctx context.Context, id domain.TransitionID, phase domain.Phase, actor domain.Address, data []byte) {
	targets := d.Hooks(id, phase)
	if len(targets) == 0 {
		return
	}

	payload, err := json.Marshal(ports.HookCall{
		Method:       ports.MethodHook,
		TransitionID: id,
		Phase:        phase.String(),
		Actor:        actor,
		Data:         data,
	})
	if err != nil {
		d.logger.Error("encode hook call", "transition_id", id, "phase", phase, "err", err)
		return
	}

	for _, target := range targets {
		start := time.Now()
		callErr := d.call(ctx, target, payload)
		ev := &domain.HookEvent{
			TransitionID: id,
			Phase:        phase,
			Target:       target,
			Actor:        actor,
			Duration:     time.Since(start),
			Err:          callErr,
		}
		if callErr != nil {
			d.logger.Warn("hook failed",
				"transition_id", id,
				"phase", phase.String(),
				"target", target.Hex(),
				"err", callErr,
			)
		}
		if d.onCall != nil {
			d.onCall(ctx, ev)
		}
	}
}

// call runs one hook under the budget. A hook that overruns is abandoned;
// its goroutine finishes on its own once the invoker honours cancellation.
func (d *Dispatcher) call(ctx context.Context, target domain.Address, payload []byte) error {
	if d.invoker == nil {
		return fmt.Errorf("%w: no invoker configured", domain.ErrInvalidReference)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.budget)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("hook panicked: %v", r)
			}
		}()
		_, err := d.invoker.Invoke(callCtx, target, payload)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		return fmt.Errorf("hook exceeded budget of %s: %w", d.budget, callCtx.Err())
	}
}
