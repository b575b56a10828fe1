package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/internal/ownership"
	"github.com/aretw0/switchyard/pkg/access"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/hooks"
	"github.com/aretw0/switchyard/pkg/ports"
	"github.com/aretw0/switchyard/pkg/rules"
	"github.com/aretw0/switchyard/pkg/statestore"
)

// Components are the four collaborators the Engine composes.
type Components struct {
	Store  *statestore.Store
	Access *access.Controller
	Rules  *rules.Validator
	Hooks  *hooks.Dispatcher
}

func (c Components) validate() error {
	if c.Store == nil || c.Access == nil || c.Rules == nil || c.Hooks == nil {
		return fmt.Errorf("%w: all components are required", domain.ErrInvalidReference)
	}
	return nil
}

// Engine is the Orchestrator. It runs the transition protocol over its
// components and owns the per-state guard-allow table.
type Engine struct {
	self  domain.Address
	owner *ownership.Owner

	store  *statestore.Store
	access *access.Controller
	rules  *rules.Validator
	hooks  *hooks.Dispatcher

	pause  ports.PauseSwitch
	audit  ports.AuditSink
	events domain.LifecycleHooks
	logger *slog.Logger

	sealed     atomic.Bool
	inProgress atomic.Bool
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(h domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.events = h
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPauseSwitch sets the switch consulted before every transition.
func WithPauseSwitch(p ports.PauseSwitch) EngineOption {
	return func(e *Engine) {
		e.pause = p
	}
}

// WithAuditSink sets where audit records are emitted.
func WithAuditSink(sink ports.AuditSink) EngineOption {
	return func(e *Engine) {
		e.audit = sink
	}
}

// NewEngine creates an Engine known to its components as self and
// administered by admin.
func NewEngine(self, admin domain.Address, c Components, opts ...EngineOption) (*Engine, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if self.IsZero() {
		return nil, fmt.Errorf("%w: engine address is zero", domain.ErrInvalidReference)
	}

	e := &Engine{
		self:   self,
		owner:  ownership.New(admin),
		store:  c.Store,
		access: c.Access,
		rules:  c.Rules,
		hooks:  c.Hooks,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Address returns the identity the Engine uses towards its components.
func (e *Engine) Address() domain.Address {
	return e.self
}

// Admin returns the address allowed to administer the Engine.
func (e *Engine) Admin() domain.Address {
	return e.owner.Current()
}

// Sealed reports whether the components were handed off to the Engine.
func (e *Engine) Sealed() bool {
	return e.sealed.Load()
}

// Seal hands every component off to the Engine. caller must be the Engine
// admin and the current owner of all four components. Afterwards the
// components accept mutations only through the Engine.
func (e *Engine) Seal(ctx context.Context, caller domain.Address) error {
	if err := e.owner.Require(caller); err != nil {
		return err
	}
	if e.sealed.Load() {
		return domain.ErrAlreadyHandedOff
	}

	owners := map[string]domain.Address{
		"state store":       e.store.Owner(),
		"access controller": e.access.Owner(),
		"rule validator":    e.rules.Owner(),
		"hook dispatcher":   e.hooks.Owner(),
	}
	for name, o := range owners {
		if o != caller {
			return fmt.Errorf("%w: %s is owned by %s", domain.ErrUnauthorized, name, o)
		}
	}

	handoffs := []func(context.Context, domain.Address, domain.Address) error{
		e.store.HandOff,
		e.access.HandOff,
		e.rules.HandOff,
		e.hooks.HandOff,
	}
	for _, handOff := range handoffs {
		if err := handOff(ctx, caller, e.self); err != nil {
			return fmt.Errorf("hand off: %w", err)
		}
	}

	e.sealed.Store(true)
	e.logger.Info("components handed off", "engine", e.self.Hex())
	return nil
}

// componentCaller resolves the identity used for a component mutation
// requested by caller: the caller itself before sealing, the Engine after.
func (e *Engine) componentCaller(caller domain.Address) (domain.Address, error) {
	if err := e.owner.Require(caller); err != nil {
		return domain.ZeroAddress, err
	}
	if e.sealed.Load() {
		return e.self, nil
	}
	return caller, nil
}
