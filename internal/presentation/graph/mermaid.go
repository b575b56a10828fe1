package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/switchyard/pkg/domain"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	Visited []domain.StateID
	Current domain.StateID
}

// GenerateMermaid produces a Mermaid flowchart of the registered states and
// their adjacency lists. The initial state is drawn as a circle; states with
// no outgoing edge as a stadium. Duplicate edges collapse into one arrow
// labelled with their multiplicity. Overlay styles are applied if provided.
func GenerateMermaid(states []domain.StateID, edges map[domain.StateID][]domain.StateID, initial domain.StateID, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, st := range states {
		safeID := sanitizeMermaidID(st)
		name := strings.ReplaceAll(st.String(), "\"", "'")

		opener, closer := "[", "]"
		switch {
		case st == initial:
			opener, closer = "((", "))"
		case len(edges[st]) == 0:
			opener, closer = "([", "])"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, name, closer))

		counts := make(map[domain.StateID]int)
		var order []domain.StateID
		for _, to := range edges[st] {
			if counts[to] == 0 {
				order = append(order, to)
			}
			counts[to]++
		}
		for _, to := range order {
			arrow := "-->"
			if counts[to] > 1 {
				arrow = fmt.Sprintf("-- \"x%d\" -->", counts[to])
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, sanitizeMermaidID(to)))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps contrast on both light and dark themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, st := range overlay.Visited {
			safeID := sanitizeMermaidID(st)
			if !seen[safeID] && !st.IsZero() {
				seen[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}
		if !overlay.Current.IsZero() {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.Current)))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(st domain.StateID) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, st.String())
}
