package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/switchyard/pkg/adapters/sqlite"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(sqlite.Config{Path: sqlite.MemoryPath}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteStore_Contract(t *testing.T) {
	ports.RunStateBackendContract(t, func(t *testing.T) ports.StateBackend {
		return sqlite.NewStore(openMemory(t))
	})
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "workflow.db")
	initial := domain.NewStateID("INITIAL")
	pending := domain.NewStateID("PENDING")
	at := time.Unix(1700000000, 0)

	db, err := sqlite.Open(sqlite.Config{Path: path}, nil)
	require.NoError(t, err)
	store := sqlite.NewStore(db)
	_, err = store.PutState(ctx, initial)
	require.NoError(t, err)
	_, err = store.PutState(ctx, pending)
	require.NoError(t, err)
	require.NoError(t, store.InitPointer(ctx, initial, at))
	_, err = store.Commit(ctx, domain.TransitionRecord{From: initial, To: pending, TransitionID: 1, Timestamp: at})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = sqlite.Open(sqlite.Config{Path: path}, nil)
	require.NoError(t, err)
	defer db.Close()
	store = sqlite.NewStore(db)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, pending, snap.Current)
	assert.Equal(t, uint64(1), snap.Nonce)

	rec, err := store.History(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, initial, rec.From)

	states, err := store.ListStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.StateID{initial, pending}, states)
}
