package cli

import (
	"context"
	"fmt"

	"github.com/aretw0/switchyard/internal/presentation/graph"
	"github.com/aretw0/switchyard/internal/presentation/tui"
	"github.com/aretw0/switchyard/pkg/domain"
)

// Inspect collects a report of the workflow with at most historyLimit records.
func (a *App) Inspect(ctx context.Context, historyLimit uint64) (tui.Report, error) {
	eng := a.Engine
	r := tui.Report{
		Name:    eng.Name,
		Address: eng.Address(),
		Admin:   eng.Admin(),
		Paused:  eng.Paused(ctx),
	}

	var err error
	if r.Snapshot, err = eng.Snapshot(ctx); err != nil {
		return r, fmt.Errorf("snapshot: %w", err)
	}
	if r.States, err = eng.States(ctx); err != nil {
		return r, fmt.Errorf("states: %w", err)
	}
	if r.Snapshot.Initialized {
		if r.Available, err = eng.AvailableTransitions(ctx); err != nil {
			return r, fmt.Errorf("available transitions: %w", err)
		}
	}
	if r.History, err = eng.HistoryRange(ctx, 0, historyLimit); err != nil {
		return r, fmt.Errorf("history: %w", err)
	}
	return r, nil
}

// Mermaid renders the registered graph with the visited path highlighted.
func (a *App) Mermaid(ctx context.Context, r tui.Report) (string, error) {
	edges := make(map[domain.StateID][]domain.StateID, len(r.States))
	for _, st := range r.States {
		out, err := a.Engine.Edges(ctx, st)
		if err != nil {
			return "", fmt.Errorf("edges of %s: %w", st, err)
		}
		edges[st] = out
	}

	var initial domain.StateID
	switch {
	case a.Config.Bootstrap != nil:
		initial = a.Config.Bootstrap.Initial
	case len(r.History) > 0:
		initial = r.History[0].From
	case r.Snapshot.Initialized:
		initial = r.Snapshot.Current
	}

	var overlay *graph.GraphOverlay
	if r.Snapshot.Initialized {
		overlay = &graph.GraphOverlay{Current: r.Snapshot.Current}
		for _, h := range r.History {
			overlay.Visited = append(overlay.Visited, h.From)
		}
	}
	return graph.GenerateMermaid(r.States, edges, initial, overlay), nil
}
