package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
)

// Report is a point-in-time summary of one workflow instance.
type Report struct {
	Name      string                    `json:"name"`
	Address   domain.Address            `json:"address"`
	Admin     domain.Address            `json:"admin"`
	Snapshot  domain.Snapshot           `json:"snapshot"`
	Paused    bool                      `json:"paused"`
	States    []domain.StateID          `json:"states"`
	Available []domain.StateID          `json:"available"`
	History   []domain.TransitionRecord `json:"history"`
}

// Markdown formats the report as a markdown document.
func (r Report) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Workflow `%s`\n\n", r.Name)
	fmt.Fprintf(&sb, "| | |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Engine | `%s` |\n", r.Address)
	fmt.Fprintf(&sb, "| Admin | `%s` |\n", r.Admin)

	if !r.Snapshot.Initialized {
		fmt.Fprintf(&sb, "| Current | _not initialized_ |\n")
	} else {
		fmt.Fprintf(&sb, "| Current | **%s** |\n", r.Snapshot.Current)
		fmt.Fprintf(&sb, "| Nonce | %d |\n", r.Snapshot.Nonce)
		fmt.Fprintf(&sb, "| Last transition | %s |\n", r.Snapshot.LastTransitionAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&sb, "| Paused | %t |\n\n", r.Paused)

	if len(r.Available) > 0 {
		sb.WriteString("## Next states\n\n")
		for _, st := range r.Available {
			fmt.Fprintf(&sb, "- %s\n", st)
		}
		sb.WriteString("\n")
	}

	if len(r.History) > 0 {
		sb.WriteString("## History\n\n| # | From | To | Transition | Actor | At |\n|---|---|---|---|---|---|\n")
		for i, h := range r.History {
			fmt.Fprintf(&sb, "| %d | %s | %s | %d | `%s` | %s |\n",
				i, h.From, h.To, h.TransitionID, h.Actor, h.Timestamp.Format(time.RFC3339))
		}
	}
	return sb.String()
}
