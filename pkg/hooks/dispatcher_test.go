package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/switchyard/pkg/adapters/memory"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin    = domain.MustAddress("0x0000000000000000000000000000000000000ad1")
	stranger = domain.MustAddress("0x00000000000000000000000000000000000000ff")
	actor    = domain.MustAddress("0x00000000000000000000000000000000000000a1")
)

func target(n int) domain.Address {
	return domain.MustAddress(fmt.Sprintf("0x%040x", 0xaa00+n))
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	d := New(admin)

	err := d.Register(ctx, admin, 1, domain.PhasePre, domain.ZeroAddress)
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	for i := 0; i < MaxHooks; i++ {
		require.NoError(t, d.Register(ctx, admin, 1, domain.PhasePre, target(i)))
	}
	err = d.Register(ctx, admin, 1, domain.PhasePre, target(99))
	assert.ErrorIs(t, err, domain.ErrHookLimitReached)
	assert.Equal(t, MaxHooks, d.Count(1, domain.PhasePre))

	// Lists are per (id, phase).
	require.NoError(t, d.Register(ctx, admin, 1, domain.PhasePost, target(0)))
	require.NoError(t, d.Register(ctx, admin, 2, domain.PhasePre, target(0)))
	assert.Equal(t, 1, d.Count(1, domain.PhasePost))
	assert.Equal(t, 1, d.Count(2, domain.PhasePre))
}

func TestRemove_SwapAndPop(t *testing.T) {
	ctx := context.Background()
	d := New(admin)
	for i := 0; i < 4; i++ {
		require.NoError(t, d.Register(ctx, admin, 1, domain.PhasePre, target(i)))
	}

	require.NoError(t, d.Remove(ctx, admin, 1, domain.PhasePre, target(1)))
	assert.Equal(t, []domain.Address{target(0), target(3), target(2)}, d.Hooks(1, domain.PhasePre))

	require.NoError(t, d.Remove(ctx, admin, 1, domain.PhasePre, target(2)))
	assert.Equal(t, []domain.Address{target(0), target(3)}, d.Hooks(1, domain.PhasePre))

	err := d.Remove(ctx, admin, 1, domain.PhasePre, target(7))
	assert.ErrorIs(t, err, domain.ErrHookNotFound)

	require.NoError(t, d.Clear(ctx, admin, 1, domain.PhasePre))
	assert.Zero(t, d.Count(1, domain.PhasePre))
	assert.Empty(t, d.Hooks(1, domain.PhasePre))
}

func TestHooksReturnsCopy(t *testing.T) {
	ctx := context.Background()
	d := New(admin)
	require.NoError(t, d.Register(ctx, admin, 1, domain.PhasePre, target(0)))

	list := d.Hooks(1, domain.PhasePre)
	list[0] = target(5)
	assert.Equal(t, []domain.Address{target(0)}, d.Hooks(1, domain.PhasePre))
}

func TestMutatorsAreOwnerGated(t *testing.T) {
	ctx := context.Background()
	d := New(admin)

	assert.ErrorIs(t, d.Register(ctx, stranger, 1, domain.PhasePre, target(0)), domain.ErrUnauthorized)
	assert.ErrorIs(t, d.Remove(ctx, stranger, 1, domain.PhasePre, target(0)), domain.ErrUnauthorized)
	assert.ErrorIs(t, d.Clear(ctx, stranger, 1, domain.PhasePre), domain.ErrUnauthorized)

	engine := domain.MustAddress("0x00000000000000000000000000000000000000e1")
	require.NoError(t, d.HandOff(ctx, admin, engine))
	assert.Equal(t, engine, d.Owner())
	assert.ErrorIs(t, d.Register(ctx, admin, 1, domain.PhasePre, target(0)), domain.ErrUnauthorized)
	require.NoError(t, d.Register(ctx, engine, 1, domain.PhasePre, target(0)))
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	var events []*domain.HookEvent
	d := New(admin,
		WithInvoker(reg),
		WithBudget(50*time.Millisecond),
		WithObserver(func(ctx context.Context, ev *domain.HookEvent) {
			events = append(events, ev)
		}),
	)

	var mu sync.Mutex
	var calls []domain.Address
	record := func(a domain.Address) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, a)
	}
	var last ports.HookCall
	ok := func(a domain.Address) memory.Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			record(a)
			var call ports.HookCall
			assert.NoError(t, json.Unmarshal(payload, &call))
			mu.Lock()
			last = call
			mu.Unlock()
			return nil, nil
		}
	}

	reg.Register(target(0), ok(target(0)))
	reg.Register(target(1), func(ctx context.Context, payload []byte) ([]byte, error) {
		record(target(1))
		return nil, errors.New("rejected")
	})
	reg.Register(target(2), func(ctx context.Context, payload []byte) ([]byte, error) {
		record(target(2))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return nil, nil
		}
	})
	reg.Register(target(3), func(ctx context.Context, payload []byte) ([]byte, error) {
		record(target(3))
		panic("boom")
	})
	reg.Register(target(4), ok(target(4)))

	for i := 0; i < 6; i++ {
		require.NoError(t, d.Register(ctx, admin, 7, domain.PhasePost, target(i)))
	}

	d.Execute(ctx, 7, domain.PhasePost, actor, []byte("payload"))

	mu.Lock()
	assert.Equal(t, []domain.Address{target(0), target(1), target(2), target(3), target(4)}, calls,
		"every registered handler runs in order; target 5 has no handler")
	mu.Unlock()

	require.Len(t, events, 6)
	failed := make([]bool, len(events))
	for i, ev := range events {
		assert.Equal(t, target(i), ev.Target)
		assert.Equal(t, domain.TransitionID(7), ev.TransitionID)
		assert.Equal(t, domain.PhasePost, ev.Phase)
		failed[i] = ev.Failed()
	}
	assert.Equal(t, []bool{false, true, true, true, false, true}, failed)
	assert.ErrorIs(t, events[2].Err, context.DeadlineExceeded)
	assert.ErrorIs(t, events[5].Err, domain.ErrInvalidReference)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ports.MethodHook, last.Method)
	assert.Equal(t, "post", last.Phase)
	assert.Equal(t, actor, last.Actor)
	assert.Equal(t, []byte("payload"), last.Data)
}

func TestExecute_WithoutInvoker(t *testing.T) {
	ctx := context.Background()
	var events []*domain.HookEvent
	d := New(admin, WithObserver(func(ctx context.Context, ev *domain.HookEvent) {
		events = append(events, ev)
	}))
	require.NoError(t, d.Register(ctx, admin, 1, domain.PhasePre, target(0)))

	d.Execute(ctx, 1, domain.PhasePre, actor, nil)
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].Err, domain.ErrInvalidReference)
}
