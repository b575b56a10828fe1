package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/switchyard/pkg/adapters/redis"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	ports.RunStateBackendContract(t, func(t *testing.T) ports.StateBackend {
		_, client := newClient(t)
		return redis.NewFromClient(client)
	})
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	_, err := store.PutState(ctx, domain.NewStateID("INITIAL"))
	require.NoError(t, err)
	require.NoError(t, store.InitPointer(ctx, domain.NewStateID("INITIAL"), time.Now()))

	assert.True(t, mr.Exists("custom:app:states"), "Expected state set with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:states:order"))
	assert.True(t, mr.Exists("custom:app:pointer"))
}

func TestRedisStore_SharedAcrossClients(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	at := time.Unix(1700000000, 0)

	a := redis.NewFromClient(client)
	_, err := a.PutState(ctx, domain.NewStateID("INITIAL"))
	require.NoError(t, err)
	require.NoError(t, a.InitPointer(ctx, domain.NewStateID("INITIAL"), at))

	other := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer other.Close()
	b := redis.NewFromClient(other)

	snap, err := b.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Initialized)
	assert.Equal(t, domain.NewStateID("INITIAL"), snap.Current)
	assert.True(t, snap.LastTransitionAt.Equal(at))
}
