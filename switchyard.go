package switchyard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/internal/runtime"
	"github.com/aretw0/switchyard/pkg/access"
	"github.com/aretw0/switchyard/pkg/adapters/memory"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/hooks"
	"github.com/aretw0/switchyard/pkg/ports"
	"github.com/aretw0/switchyard/pkg/rules"
	"github.com/aretw0/switchyard/pkg/session"
	"github.com/aretw0/switchyard/pkg/statestore"
)

// DefaultName is the instance name used when none is configured.
const DefaultName = "default"

// Engine is the high-level entry point of the library. It wires the
// components, serializes writers and exposes the registration and query
// surfaces of one workflow instance.
type Engine struct {
	runtime  *runtime.Engine
	sessions *session.Manager
	backend  ports.StateBackend
	logger   *slog.Logger
	Name     string

	self            domain.Address
	invoker         ports.Invoker
	audit           ports.AuditSink
	pause           ports.PauseSwitch
	locker          ports.DistributedLocker
	lockTTL         time.Duration
	hooks           domain.LifecycleHooks
	clock           func() time.Time
	hookBudget      time.Duration
	validateTimeout time.Duration
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithName sets the instance name. It labels logs and keys distributed locks.
func WithName(name string) Option {
	return func(e *Engine) {
		e.Name = name
	}
}

// WithBackend sets where states, edges, the pointer and history are kept.
// The default is an in-memory backend.
func WithBackend(b ports.StateBackend) Option {
	return func(e *Engine) {
		e.backend = b
	}
}

// WithInvoker sets the transport used for hooks and external validators.
func WithInvoker(inv ports.Invoker) Option {
	return func(e *Engine) {
		e.invoker = inv
	}
}

// WithAuditSink sets where audit records are emitted.
func WithAuditSink(sink ports.AuditSink) Option {
	return func(e *Engine) {
		e.audit = sink
	}
}

// WithPauseSwitch sets the switch consulted before every transition.
func WithPauseSwitch(p ports.PauseSwitch) Option {
	return func(e *Engine) {
		e.pause = p
	}
}

// WithLocker serializes writers across processes sharing the backend.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithLockTTL bounds how long a distributed writer lock is held.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.lockTTL = ttl
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = h
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the time source of the store and the timelock rules.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithHookBudget sets how long a single hook call may take.
func WithHookBudget(d time.Duration) Option {
	return func(e *Engine) {
		e.hookBudget = d
	}
}

// WithValidatorTimeout bounds calls to external validators.
func WithValidatorTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.validateTimeout = d
	}
}

// WithEngineAddress fixes the identity the engine uses towards its
// components. By default it is derived from the admin and the name.
func WithEngineAddress(a domain.Address) Option {
	return func(e *Engine) {
		e.self = a
	}
}

// New creates an Engine administered by admin.
func New(admin domain.Address, opts ...Option) (*Engine, error) {
	if admin.IsZero() {
		return nil, fmt.Errorf("%w: admin is the zero address", domain.ErrInvalidReference)
	}

	eng := &Engine{
		Name:            DefaultName,
		clock:           time.Now,
		hookBudget:      hooks.DefaultBudget,
		validateTimeout: rules.DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	eng.logger = eng.logger.With("workflow", eng.Name)
	if eng.backend == nil {
		eng.backend = memory.NewStore()
	}
	if eng.invoker == nil {
		eng.invoker = memory.NewRegistry()
	}
	if eng.self.IsZero() {
		eng.self = DeriveAddress(admin, eng.Name)
	}

	components := runtime.Components{
		Store: statestore.New(eng.backend, admin,
			statestore.WithClock(eng.clock),
			statestore.WithLogger(eng.logger),
		),
		Access: access.New(admin, access.WithLogger(eng.logger)),
		Rules: rules.New(admin,
			rules.WithInvoker(eng.invoker),
			rules.WithClock(eng.clock),
			rules.WithCallTimeout(eng.validateTimeout),
			rules.WithLogger(eng.logger),
		),
		Hooks: hooks.New(admin,
			hooks.WithInvoker(eng.invoker),
			hooks.WithBudget(eng.hookBudget),
			hooks.WithLogger(eng.logger),
			hooks.WithObserver(eng.hooks.OnHookReturn),
		),
	}

	rt, err := runtime.NewEngine(eng.self, admin, components,
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
		runtime.WithPauseSwitch(eng.pause),
		runtime.WithAuditSink(eng.audit),
	)
	if err != nil {
		return nil, err
	}
	eng.runtime = rt

	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
	}
	if eng.lockTTL > 0 {
		sessionOpts = append(sessionOpts, session.WithLockTTL(eng.lockTTL))
	}
	eng.sessions = session.NewManager(sessionOpts...)

	return eng, nil
}

// DeriveAddress is the default engine identity for an admin and instance name.
func DeriveAddress(admin domain.Address, name string) domain.Address {
	var a domain.Address
	copy(a[:], rules.Keccak256([]byte("switchyard.engine:"+name), admin[:])[12:])
	return a
}

// write serializes a mutating call. Contexts handed to hooks are refused
// before the lock is taken.
func (e *Engine) write(ctx context.Context, fn func(context.Context) error) error {
	if err := runtime.ReentryError(ctx); err != nil {
		return err
	}
	return e.sessions.WithLock(ctx, e.Name, fn)
}

// Address returns the engine identity.
func (e *Engine) Address() domain.Address {
	return e.runtime.Address()
}

// Admin returns the engine administrator.
func (e *Engine) Admin() domain.Address {
	return e.runtime.Admin()
}

// Backend returns the state backend.
func (e *Engine) Backend() ports.StateBackend {
	return e.backend
}

// Invoker returns the transport used for hooks and validators.
func (e *Engine) Invoker() ports.Invoker {
	return e.invoker
}

// Sealed reports whether the components were handed off to the engine.
func (e *Engine) Sealed() bool {
	return e.runtime.Sealed()
}

// Seal hands every component off to the engine.
func (e *Engine) Seal(ctx context.Context, caller domain.Address) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.runtime.Seal(ctx, caller)
	})
}

// TransitionTo moves the workflow to target through transition id.
func (e *Engine) TransitionTo(ctx context.Context, caller domain.Address, target domain.StateID, id domain.TransitionID, data []byte) (*domain.TransitionEvent, error) {
	var ev *domain.TransitionEvent
	err := e.write(ctx, func(ctx context.Context) error {
		var err error
		ev, err = e.runtime.TransitionTo(ctx, caller, target, id, data)
		return err
	})
	return ev, err
}

// Apply replays def through the registration surface, sealing the engine
// first if needed. Entries already present in a persistent backend are
// skipped, so a restarted process can apply the same definition again.
func (e *Engine) Apply(ctx context.Context, caller domain.Address, def domain.Definition) error {
	return e.write(ctx, func(ctx context.Context) error {
		return e.apply(ctx, caller, def)
	})
}

func (e *Engine) apply(ctx context.Context, caller domain.Address, def domain.Definition) error {
	rt := e.runtime
	if !rt.Sealed() {
		if err := rt.Seal(ctx, caller); err != nil {
			return fmt.Errorf("seal: %w", err)
		}
	}

	for _, s := range def.States {
		err := rt.RegisterState(ctx, caller, s)
		if err != nil && !errors.Is(err, domain.ErrDuplicateState) {
			return fmt.Errorf("register state %s: %w", s, err)
		}
	}
	for _, edge := range def.Edges {
		ok, err := rt.IsEdgeAllowed(ctx, edge.From, edge.To)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := rt.AddEdge(ctx, caller, edge.From, edge.To); err != nil {
			return fmt.Errorf("add edge %s -> %s: %w", edge.From, edge.To, err)
		}
	}
	for _, ar := range def.AdminRoles {
		if err := rt.SetAdminRole(ctx, caller, ar.Role, ar.Admin); err != nil {
			return fmt.Errorf("set admin role of %s: %w", ar.Role, err)
		}
	}
	if len(def.Grants) > 0 {
		accounts := make([]domain.Address, len(def.Grants))
		roles := make([]domain.Role, len(def.Grants))
		for i, g := range def.Grants {
			accounts[i], roles[i] = g.Account, g.Role
		}
		if err := rt.BatchGrant(ctx, caller, accounts, roles); err != nil {
			return fmt.Errorf("grant roles: %w", err)
		}
	}
	for _, t := range def.Transitions {
		for _, from := range t.From {
			if err := rt.AllowTransition(ctx, caller, from, t.ID); err != nil {
				return fmt.Errorf("allow transition %d from %s: %w", t.ID, from, err)
			}
		}
		if !t.Role.IsZero() {
			if err := rt.SetTransitionRole(ctx, caller, t.ID, t.Role); err != nil {
				return fmt.Errorf("set role of transition %d: %w", t.ID, err)
			}
		}
		if t.Rule != nil {
			if err := rt.SetRule(ctx, caller, t.ID, t.Rule.Rule()); err != nil {
				return fmt.Errorf("set rule of transition %d: %w", t.ID, err)
			}
		}
	}
	for _, u := range def.Unlocks {
		if err := rt.SetUnlockTime(ctx, caller, u.ID, u.Actor, u.At); err != nil {
			return fmt.Errorf("set unlock time of transition %d: %w", u.ID, err)
		}
	}
	for _, h := range def.Hooks {
		if err := rt.RegisterHook(ctx, caller, h.ID, h.Phase, h.Target); err != nil {
			return fmt.Errorf("register %s hook of transition %d: %w", h.Phase, h.ID, err)
		}
	}

	if def.Initial.IsZero() {
		return nil
	}
	err := rt.Initialize(ctx, caller, def.Initial)
	if errors.Is(err, domain.ErrAlreadyInitialized) {
		return nil
	}
	return err
}
