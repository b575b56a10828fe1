package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/switchyard/pkg/adapters/redis"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditStream(t *testing.T) {
	_, client := newClient(t)
	sink := redis.NewAuditStream(client, "switchyard:audit", 0)
	ctx := context.Background()

	ev := domain.TransitionEvent{
		PreviousState: domain.NewStateID("INITIAL"),
		NewState:      domain.NewStateID("PENDING"),
		Actor:         domain.MustAddress("0x00000000000000000000000000000000000000a1"),
		TransitionID:  1,
		Timestamp:     time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, sink.Emit(ctx, ev))
	require.NoError(t, sink.Emit(ctx, ev))

	got, err := sink.Read(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ev, got[0])
}

func TestPauseFlag(t *testing.T) {
	_, client := newClient(t)
	flag := redis.NewPauseFlag(client, "switchyard:paused")
	ctx := context.Background()

	paused, err := flag.Paused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)

	require.NoError(t, flag.Set(ctx, true))
	paused, err = flag.Paused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)

	require.NoError(t, flag.Set(ctx, false))
	paused, err = flag.Paused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)
}

func TestPauseFlag_UnreachableServer(t *testing.T) {
	mr, client := newClient(t)
	flag := redis.NewPauseFlag(client, "switchyard:paused")
	mr.Close()

	_, err := flag.Paused(context.Background())
	assert.Error(t, err)
}
