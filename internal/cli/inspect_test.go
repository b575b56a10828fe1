package cli

import (
	"context"
	"testing"

	"github.com/aretw0/switchyard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApp_InspectAndMermaid(t *testing.T) {
	ctx := context.Background()
	app, err := Build(ctx, baseConfig(config.DriverMemory), nil)
	require.NoError(t, err)
	defer app.Close()

	_, err = app.Engine.TransitionTo(ctx, admin, pending, 1, nil)
	require.NoError(t, err)

	r, err := app.Inspect(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "orders", r.Name)
	assert.Equal(t, admin, r.Admin)
	assert.Equal(t, pending, r.Snapshot.Current)
	assert.Len(t, r.States, 2)
	assert.Empty(t, r.Available)
	require.Len(t, r.History, 1)
	assert.Contains(t, r.Markdown(), "| Current | **PENDING** |")

	chart, err := app.Mermaid(ctx, r)
	require.NoError(t, err)
	assert.Contains(t, chart, `INITIAL(("INITIAL"))`)
	assert.Contains(t, chart, `PENDING(["PENDING"])`)
	assert.Contains(t, chart, "INITIAL --> PENDING")
}
