package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateBackendContract runs a suite of tests to verify that a StateBackend implementation
// adheres to the defined interface contract. newBackend must return an empty backend.
func RunStateBackendContract(t *testing.T, newBackend func(t *testing.T) StateBackend) {
	ctx := context.Background()
	initial := domain.NewStateID("INITIAL")
	pending := domain.NewStateID("PENDING")
	approved := domain.NewStateID("APPROVED")
	actor := domain.MustAddress("0x00000000000000000000000000000000000000a1")
	at := time.Unix(1700000000, 0).UTC()

	t.Run("PutState and HasState", func(t *testing.T) {
		b := newBackend(t)

		created, err := b.PutState(ctx, initial)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = b.PutState(ctx, initial)
		require.NoError(t, err)
		assert.False(t, created, "second PutState must report existing state")

		ok, err := b.HasState(ctx, initial)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = b.HasState(ctx, pending)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ListStates keeps registration order", func(t *testing.T) {
		b := newBackend(t)
		for _, s := range []domain.StateID{pending, initial, approved} {
			_, err := b.PutState(ctx, s)
			require.NoError(t, err)
		}

		states, err := b.ListStates(ctx)
		require.NoError(t, err)
		assert.Equal(t, []domain.StateID{pending, initial, approved}, states)
	})

	t.Run("Edges keep append order and duplicates", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.AppendEdge(ctx, initial, pending))
		require.NoError(t, b.AppendEdge(ctx, initial, approved))
		require.NoError(t, b.AppendEdge(ctx, initial, pending))

		edges, err := b.Edges(ctx, initial)
		require.NoError(t, err)
		assert.Equal(t, []domain.StateID{pending, approved, pending}, edges)

		none, err := b.Edges(ctx, pending)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Allow entries", func(t *testing.T) {
		b := newBackend(t)

		ok, err := b.Allowed(ctx, initial, 1)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, b.SetAllowed(ctx, initial, 1, true))
		ok, err = b.Allowed(ctx, initial, 1)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = b.Allowed(ctx, initial, 2)
		require.NoError(t, err)
		assert.False(t, ok, "entries are per transition id")

		require.NoError(t, b.SetAllowed(ctx, initial, 1, false))
		ok, err = b.Allowed(ctx, initial, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("InitPointer once", func(t *testing.T) {
		b := newBackend(t)

		snap, err := b.Snapshot(ctx)
		require.NoError(t, err)
		assert.False(t, snap.Initialized)

		require.NoError(t, b.InitPointer(ctx, initial, at))
		err = b.InitPointer(ctx, pending, at)
		assert.ErrorIs(t, err, domain.ErrAlreadyInitialized)

		snap, err = b.Snapshot(ctx)
		require.NoError(t, err)
		assert.True(t, snap.Initialized)
		assert.Equal(t, initial, snap.Current)
		assert.Equal(t, uint64(0), snap.Nonce)
	})

	t.Run("SetPointer increments nonce", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.InitPointer(ctx, initial, at))

		n, err := b.SetPointer(ctx, pending, at.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), n)

		n, err = b.SetPointer(ctx, approved, at.Add(2*time.Second))
		require.NoError(t, err)
		assert.Equal(t, uint64(2), n)

		snap, err := b.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, approved, snap.Current)
		assert.Equal(t, uint64(2), snap.Nonce)
		assert.True(t, snap.LastTransitionAt.Equal(at.Add(2*time.Second)))
	})

	t.Run("Commit writes pointer and history together", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.InitPointer(ctx, initial, at))

		rec := domain.TransitionRecord{From: initial, To: pending, Actor: actor, TransitionID: 1, Timestamp: at}
		n, err := b.Commit(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), n)

		got, err := b.History(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, rec.From, got.From)
		assert.Equal(t, rec.To, got.To)
		assert.Equal(t, rec.Actor, got.Actor)
		assert.Equal(t, rec.TransitionID, got.TransitionID)
		assert.True(t, rec.Timestamp.Equal(got.Timestamp))

		snap, err := b.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, pending, snap.Current)
		assert.Equal(t, uint64(1), snap.Nonce)
	})

	t.Run("History not found", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.History(ctx, 42)
		assert.ErrorIs(t, err, domain.ErrHistoryNotFound)

		require.NoError(t, b.PutHistory(ctx, 42, domain.TransitionRecord{From: initial, To: pending, Timestamp: at}))
		got, err := b.History(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, pending, got.To)
	})
}
