package access

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/internal/ownership"
	"github.com/aretw0/switchyard/pkg/domain"
)

var (
	// DefaultAdminRole is the zero role. It administers itself and, unless
	// changed, every other role.
	DefaultAdminRole = domain.Role{}

	// ManagerRole may assign required roles to transitions.
	ManagerRole = domain.NewRole("MANAGER_ROLE")
)

// Controller is the AccessController component: role grants, admin roles and
// the per-transition required role.
type Controller struct {
	mu              sync.RWMutex
	members         map[domain.Role]map[domain.Address]struct{}
	admins          map[domain.Role]domain.Role
	transitionRoles map[domain.TransitionID]domain.Role

	owner  *ownership.Owner
	logger *slog.Logger
}

// Option configures the Controller.
type Option func(*Controller)

// WithLogger configures a logger for the Controller.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// New creates a Controller where deployer holds the default admin role.
func New(deployer domain.Address, opts ...Option) *Controller {
	c := &Controller{
		members:         make(map[domain.Role]map[domain.Address]struct{}),
		admins:          make(map[domain.Role]domain.Role),
		transitionRoles: make(map[domain.TransitionID]domain.Role),
		owner:           ownership.New(deployer),
		logger:          logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.grantLocked(deployer, DefaultAdminRole)
	return c
}

// HandOff gives the orchestrator exclusive write access. Only the deployer
// may call it, once. The orchestrator receives the default admin and
// manager roles so it can keep administering through its own surface.
func (c *Controller) HandOff(ctx context.Context, caller, next domain.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.owner.HandOff(caller, next); err != nil {
		return err
	}
	c.grantLocked(next, DefaultAdminRole)
	c.grantLocked(next, ManagerRole)
	c.logger.Info("access controller handed off", "owner", next)
	return nil
}

// Grant gives role to account. caller must hold the admin role of role.
func (c *Controller) Grant(ctx context.Context, caller, account domain.Address, role domain.Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireAdminLocked(caller, role); err != nil {
		return err
	}
	c.grantLocked(account, role)
	c.logger.Debug("role granted", "role", role, "account", account, "caller", caller)
	return nil
}

// Revoke removes role from account. caller must hold the admin role of role.
func (c *Controller) Revoke(ctx context.Context, caller, account domain.Address, role domain.Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireAdminLocked(caller, role); err != nil {
		return err
	}
	delete(c.members[role], account)
	c.logger.Debug("role revoked", "role", role, "account", account, "caller", caller)
	return nil
}

// Renounce removes role from the caller itself.
func (c *Controller) Renounce(ctx context.Context, caller domain.Address, role domain.Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireWriterLocked(caller); err != nil {
		return err
	}
	delete(c.members[role], caller)
	return nil
}

// BatchGrant grants roles[i] to accounts[i]. Authorization for every pair is
// checked before anything is written.
func (c *Controller) BatchGrant(ctx context.Context, caller domain.Address, accounts []domain.Address, roles []domain.Role) error {
	if len(accounts) != len(roles) {
		return fmt.Errorf("%w: %d accounts, %d roles", domain.ErrArrayLengthMismatch, len(accounts), len(roles))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, role := range roles {
		if err := c.requireAdminLocked(caller, role); err != nil {
			return err
		}
	}
	for i, account := range accounts {
		c.grantLocked(account, roles[i])
	}
	return nil
}

// SetAdminRole changes the admin role of role. Only default admins may call it.
func (c *Controller) SetAdminRole(ctx context.Context, caller domain.Address, role, admin domain.Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireWriterLocked(caller); err != nil {
		return err
	}
	if !c.hasRoleLocked(caller, DefaultAdminRole) {
		return fmt.Errorf("%w: %s lacks the default admin role", domain.ErrUnauthorized, caller)
	}
	c.admins[role] = admin
	return nil
}

// SetTransitionRole requires role for transition id. caller must hold ManagerRole.
// Setting the zero role removes the requirement.
func (c *Controller) SetTransitionRole(ctx context.Context, caller domain.Address, id domain.TransitionID, role domain.Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireWriterLocked(caller); err != nil {
		return err
	}
	if !c.hasRoleLocked(caller, ManagerRole) {
		return fmt.Errorf("%w: %s lacks %s", domain.ErrUnauthorized, caller, ManagerRole)
	}
	if role.IsZero() {
		delete(c.transitionRoles, id)
		return nil
	}
	c.transitionRoles[id] = role
	return nil
}

// HasRole reports whether account holds role.
func (c *Controller) HasRole(ctx context.Context, account domain.Address, role domain.Role) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasRoleLocked(account, role)
}

// AdminRoleOf returns the admin role of role.
func (c *Controller) AdminRoleOf(role domain.Role) domain.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.admins[role]
}

// TransitionRole returns the role required for id, if any.
func (c *Controller) TransitionRole(id domain.TransitionID) (domain.Role, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.transitionRoles[id]
	return r, ok
}

// CanExecute is fail-open: with no role configured for id every account may execute.
func (c *Controller) CanExecute(ctx context.Context, account domain.Address, id domain.TransitionID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	role, ok := c.transitionRoles[id]
	if !ok {
		return true
	}
	return c.hasRoleLocked(account, role)
}

func (c *Controller) requireWriterLocked(caller domain.Address) error {
	if !c.owner.HandedOff() {
		return nil
	}
	return c.owner.Require(caller)
}

func (c *Controller) requireAdminLocked(caller domain.Address, role domain.Role) error {
	if err := c.requireWriterLocked(caller); err != nil {
		return err
	}
	admin := c.admins[role]
	if !c.hasRoleLocked(caller, admin) {
		return fmt.Errorf("%w: %s lacks admin role %s of %s", domain.ErrUnauthorized, caller, admin, role)
	}
	return nil
}

func (c *Controller) hasRoleLocked(account domain.Address, role domain.Role) bool {
	_, ok := c.members[role][account]
	return ok
}

func (c *Controller) grantLocked(account domain.Address, role domain.Role) {
	m, ok := c.members[role]
	if !ok {
		m = make(map[domain.Address]struct{})
		c.members[role] = m
	}
	m[account] = struct{}{}
}

// Owner returns the address holding write access.
func (c *Controller) Owner() domain.Address {
	return c.owner.Current()
}
