package domain

import "time"

// Edge is a directed, allowed pair of states.
type Edge struct {
	From StateID `json:"from" yaml:"from" mapstructure:"from"`
	To   StateID `json:"to" yaml:"to" mapstructure:"to"`
}

// TransitionRecord is the history snapshot of one committed transition.
// Records are append-only and indexed by the nonce of the commit that produced them.
type TransitionRecord struct {
	From         StateID      `json:"from"`
	To           StateID      `json:"to"`
	Actor        Address      `json:"actor"`
	TransitionID TransitionID `json:"transition_id"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Snapshot is a read-only view of the current pointer of a workflow instance.
type Snapshot struct {
	Current          StateID   `json:"current"`
	Nonce            uint64    `json:"nonce"`
	LastTransitionAt time.Time `json:"last_transition_at"`
	Initialized      bool      `json:"initialized"`
}

// HistoryIndex returns the history slot written by the commit that moved the nonce to n.
// The first committed transition (nonce 1) lands at index 0.
func HistoryIndex(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	return n - 1
}
