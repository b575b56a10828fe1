//go:build unix

package cli

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchSignals_FirstCancelsSecondForces(t *testing.T) {
	s := WatchSignals(context.Background(), syscall.SIGUSR1)
	defer s.Stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by the first signal")
	}
	assert.Equal(t, syscall.SIGUSR1, s.Signal())

	select {
	case <-s.Forced():
		t.Fatal("forced before the second signal")
	default:
	}

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))
	select {
	case <-s.Forced():
	case <-time.After(2 * time.Second):
		t.Fatal("second signal did not force")
	}
}

func TestWatchSignals_Stop(t *testing.T) {
	s := WatchSignals(context.Background(), syscall.SIGUSR2)
	s.Stop()
	s.Stop()

	assert.ErrorIs(t, s.Err(), context.Canceled)
	assert.Nil(t, s.Signal())
}
