package ownership

import (
	"testing"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwner_HandOffOnce(t *testing.T) {
	admin := domain.MustAddress("0x00000000000000000000000000000000000000ad")
	engine := domain.MustAddress("0x00000000000000000000000000000000000000e0")
	other := domain.MustAddress("0x00000000000000000000000000000000000000ff")

	o := New(admin)
	require.NoError(t, o.Require(admin))
	assert.ErrorIs(t, o.Require(other), domain.ErrUnauthorized)

	assert.ErrorIs(t, o.HandOff(other, engine), domain.ErrUnauthorized)
	assert.ErrorIs(t, o.HandOff(admin, domain.ZeroAddress), domain.ErrInvalidReference)
	assert.False(t, o.HandedOff())

	require.NoError(t, o.HandOff(admin, engine))
	assert.True(t, o.HandedOff())
	assert.Equal(t, engine, o.Current())
	assert.ErrorIs(t, o.Require(admin), domain.ErrUnauthorized, "bootstrap admin loses write access")
	require.NoError(t, o.Require(engine))

	assert.ErrorIs(t, o.HandOff(engine, admin), domain.ErrAlreadyHandedOff)
}
