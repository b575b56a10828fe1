package access_test

import (
	"context"
	"testing"

	"github.com/aretw0/switchyard/pkg/access"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	deployer = domain.MustAddress("0x00000000000000000000000000000000000000ad")
	engine   = domain.MustAddress("0x00000000000000000000000000000000000000e0")
	alice    = domain.MustAddress("0x00000000000000000000000000000000000000a1")
	bob      = domain.MustAddress("0x00000000000000000000000000000000000000b0")

	approver = domain.NewRole("APPROVER")
	auditor  = domain.NewRole("AUDITOR")
)

func TestController_GrantRequiresAdminRole(t *testing.T) {
	ctx := context.Background()
	c := access.New(deployer)

	assert.True(t, c.HasRole(ctx, deployer, access.DefaultAdminRole))

	err := c.Grant(ctx, alice, bob, approver)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, c.Grant(ctx, deployer, alice, approver))
	assert.True(t, c.HasRole(ctx, alice, approver))

	require.NoError(t, c.Revoke(ctx, deployer, alice, approver))
	assert.False(t, c.HasRole(ctx, alice, approver))
}

func TestController_CustomAdminRole(t *testing.T) {
	ctx := context.Background()
	c := access.New(deployer)

	require.NoError(t, c.SetAdminRole(ctx, deployer, approver, auditor))
	assert.Equal(t, auditor, c.AdminRoleOf(approver))

	// The default admin no longer administers approver.
	assert.ErrorIs(t, c.Grant(ctx, deployer, bob, approver), domain.ErrUnauthorized)

	require.NoError(t, c.Grant(ctx, deployer, alice, auditor))
	require.NoError(t, c.Grant(ctx, alice, bob, approver))
	assert.True(t, c.HasRole(ctx, bob, approver))

	assert.ErrorIs(t, c.SetAdminRole(ctx, alice, approver, auditor), domain.ErrUnauthorized)
}

func TestController_BatchGrant(t *testing.T) {
	ctx := context.Background()
	c := access.New(deployer)

	err := c.BatchGrant(ctx, deployer, []domain.Address{alice, bob}, []domain.Role{approver})
	assert.ErrorIs(t, err, domain.ErrArrayLengthMismatch)
	assert.False(t, c.HasRole(ctx, alice, approver))

	require.NoError(t, c.BatchGrant(ctx, deployer, []domain.Address{alice, bob}, []domain.Role{approver, auditor}))
	assert.True(t, c.HasRole(ctx, alice, approver))
	assert.True(t, c.HasRole(ctx, bob, auditor))

	// All-or-nothing: one unauthorized pair blocks the whole batch.
	require.NoError(t, c.SetAdminRole(ctx, deployer, auditor, approver))
	err = c.BatchGrant(ctx, deployer, []domain.Address{bob, alice}, []domain.Role{approver, auditor})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.False(t, c.HasRole(ctx, bob, approver))
}

func TestController_CanExecute(t *testing.T) {
	ctx := context.Background()
	c := access.New(deployer)

	// Fail-open when nothing is configured.
	assert.True(t, c.CanExecute(ctx, alice, 1))

	assert.ErrorIs(t, c.SetTransitionRole(ctx, deployer, 1, approver), domain.ErrUnauthorized)
	require.NoError(t, c.Grant(ctx, deployer, deployer, access.ManagerRole))
	require.NoError(t, c.SetTransitionRole(ctx, deployer, 1, approver))

	role, ok := c.TransitionRole(1)
	require.True(t, ok)
	assert.Equal(t, approver, role)

	for _, account := range []domain.Address{alice, bob} {
		assert.Equal(t, c.HasRole(ctx, account, approver), c.CanExecute(ctx, account, 1))
	}
	require.NoError(t, c.Grant(ctx, deployer, alice, approver))
	assert.True(t, c.CanExecute(ctx, alice, 1))
	assert.False(t, c.CanExecute(ctx, bob, 1))

	require.NoError(t, c.SetTransitionRole(ctx, deployer, 1, domain.Role{}))
	assert.True(t, c.CanExecute(ctx, bob, 1))
}

func TestController_HandOff(t *testing.T) {
	ctx := context.Background()
	c := access.New(deployer)

	assert.ErrorIs(t, c.HandOff(ctx, alice, engine), domain.ErrUnauthorized)
	require.NoError(t, c.HandOff(ctx, deployer, engine))

	assert.True(t, c.HasRole(ctx, engine, access.DefaultAdminRole))
	assert.True(t, c.HasRole(ctx, engine, access.ManagerRole))

	// The deployer still holds the admin role but lost write access.
	assert.ErrorIs(t, c.Grant(ctx, deployer, alice, approver), domain.ErrUnauthorized)
	require.NoError(t, c.Grant(ctx, engine, alice, approver))

	assert.ErrorIs(t, c.HandOff(ctx, engine, deployer), domain.ErrAlreadyHandedOff)
}

func TestController_Renounce(t *testing.T) {
	ctx := context.Background()
	c := access.New(deployer)
	require.NoError(t, c.Grant(ctx, deployer, alice, approver))

	require.NoError(t, c.Renounce(ctx, alice, approver))
	assert.False(t, c.HasRole(ctx, alice, approver))
}
