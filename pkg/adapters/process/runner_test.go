package process

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	echoTarget = domain.MustAddress("0x00000000000000000000000000000000000000e1")
	failTarget = domain.MustAddress("0x00000000000000000000000000000000000000e2")
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestRunner_Invoke(t *testing.T) {
	requireShell(t)

	r := NewRunner()
	r.Register(echoTarget, "sh", "-c", "cat; echo \" $SWITCHYARD_TARGET\"")
	r.Register(failTarget, "sh", "-c", "echo boom >&2; exit 3")

	t.Run("Pipes payload through stdin", func(t *testing.T) {
		out, err := r.Invoke(context.Background(), echoTarget, []byte(`true`))
		require.NoError(t, err)
		assert.Equal(t, "true "+echoTarget.Hex(), string(out))
	})

	t.Run("Reports exit failures with stderr", func(t *testing.T) {
		_, err := r.Invoke(context.Background(), failTarget, []byte(`{}`))
		assert.ErrorIs(t, err, ErrProcessFailed)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("Rejects unregistered targets", func(t *testing.T) {
		_, err := r.Invoke(context.Background(), domain.MustAddress("0x00000000000000000000000000000000000000ff"), nil)
		assert.ErrorIs(t, err, domain.ErrInvalidReference)
	})

	t.Run("Honors context deadline", func(t *testing.T) {
		slow := domain.MustAddress("0x00000000000000000000000000000000000000e3")
		r.Register(slow, "sleep", "5")
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := r.Invoke(ctx, slow, nil)
		assert.ErrorIs(t, err, ErrProcessFailed)
		assert.Less(t, time.Since(start), 4*time.Second)
	})
}

func TestLoadTargets(t *testing.T) {
	requireShell(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
targets:
  - address: "0x00000000000000000000000000000000000000e1"
    name: approve
    command: sh
    args: ["-c", "echo $VERDICT"]
    env:
      VERDICT: "true"
  - name: incomplete
    command: sh
`), 0o644))

	targets, err := LoadTargets(path)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "approve", targets[echoTarget].Name)

	r := NewRunner(WithRegistry(targets), WithBaseDir(dir))
	assert.True(t, r.Resolves(echoTarget))
	out, err := r.Invoke(context.Background(), echoTarget, nil)
	require.NoError(t, err)
	assert.Equal(t, "true", string(out))

	missing, err := LoadTargets(filepath.Join(dir, "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
