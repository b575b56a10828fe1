package statestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/switchyard/pkg/adapters/memory"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin    = domain.MustAddress("0x00000000000000000000000000000000000000ad")
	engine   = domain.MustAddress("0x00000000000000000000000000000000000000e0")
	stranger = domain.MustAddress("0x00000000000000000000000000000000000000ff")

	initial  = domain.NewStateID("INITIAL")
	pending  = domain.NewStateID("PENDING")
	approved = domain.NewStateID("APPROVED")
)

func newStore(t *testing.T) *statestore.Store {
	t.Helper()
	now := time.Unix(1700000000, 0).UTC()
	s := statestore.New(memory.NewStore(), admin, statestore.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	for _, id := range []domain.StateID{initial, pending, approved} {
		require.NoError(t, s.RegisterState(ctx, admin, id))
	}
	return s
}

func TestStore_RegisterState(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	err := s.RegisterState(ctx, admin, initial)
	assert.ErrorIs(t, err, domain.ErrDuplicateState)

	err = s.RegisterState(ctx, admin, domain.StateID{})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	err = s.RegisterState(ctx, stranger, domain.NewStateID("OTHER"))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	states, err := s.States(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.StateID{initial, pending, approved}, states)
}

func TestStore_EdgeAdjacency(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.AddEdge(ctx, admin, initial, pending))

	ok, err := s.IsEdgeAllowed(ctx, initial, pending)
	require.NoError(t, err)
	assert.True(t, ok)

	// Untouched pairs stay false, including the reverse direction.
	for _, pair := range [][2]domain.StateID{{pending, initial}, {initial, approved}, {approved, pending}} {
		ok, err := s.IsEdgeAllowed(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.False(t, ok, "%s->%s", pair[0], pair[1])
	}

	err = s.AddEdge(ctx, admin, initial, domain.NewStateID("GHOST"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	err = s.AddEdge(ctx, admin, domain.NewStateID("GHOST"), initial)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestStore_DuplicateEdgesAreKept(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.AddEdge(ctx, admin, initial, pending))
	require.NoError(t, s.AddEdge(ctx, admin, initial, pending))

	edges, err := s.Edges(ctx, initial)
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestStore_SetCurrentStateAndHistory(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Initialize(ctx, admin, initial))

	nonce, err := s.Nonce(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), nonce, "initialize does not count as a change")

	_, err = s.SetCurrentState(ctx, admin, domain.NewStateID("GHOST"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	n, err := s.SetCurrentState(ctx, admin, pending)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	require.NoError(t, s.RecordHistory(ctx, admin, initial, pending, stranger, 1))

	rec, err := s.History(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, initial, rec.From)
	assert.Equal(t, pending, rec.To)
	assert.Equal(t, stranger, rec.Actor)
	assert.Equal(t, domain.TransitionID(1), rec.TransitionID)

	cur, err := s.CurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, pending, cur)
}

func TestStore_CommitTransition(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Initialize(ctx, admin, initial))

	rec, n, err := s.CommitTransition(ctx, admin, domain.TransitionRecord{From: initial, To: approved, Actor: stranger, TransitionID: 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	assert.False(t, rec.Timestamp.IsZero())

	stored, err := s.History(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, approved, stored.To)

	_, _, err = s.CommitTransition(ctx, admin, domain.TransitionRecord{From: approved, To: domain.NewStateID("GHOST")})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	n, _ = s.Nonce(ctx)
	assert.Equal(t, uint64(1), n)
}

func TestStore_HandOff(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.HandOff(ctx, admin, engine))
	assert.Equal(t, engine, s.Owner())

	err := s.RegisterState(ctx, admin, domain.NewStateID("LATE"))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	require.NoError(t, s.RegisterState(ctx, engine, domain.NewStateID("LATE")))

	assert.ErrorIs(t, s.HandOff(ctx, engine, admin), domain.ErrAlreadyHandedOff)
}

func TestStore_TransitionAllowEntries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SetTransitionAllowed(ctx, admin, initial, 1, true))
	ok, err := s.IsTransitionAllowed(ctx, initial, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	// The allow table does not create adjacency.
	ok, err = s.IsEdgeAllowed(ctx, initial, pending)
	require.NoError(t, err)
	assert.False(t, ok)

	err = s.SetTransitionAllowed(ctx, admin, domain.NewStateID("GHOST"), 1, true)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
