package domain

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"
)

// TransitionEvent is the audit record emitted once per committed transition.
// Its binary form is a fixed layout consumed by external indexers; see MarshalBinary.
type TransitionEvent struct {
	PreviousState StateID      `json:"previous_state"`
	NewState      StateID      `json:"new_state"`
	Actor         Address      `json:"actor"`
	TransitionID  TransitionID `json:"transition_id"`
	Timestamp     time.Time    `json:"timestamp"`
}

// EventSize is the length of a binary-encoded TransitionEvent.
const EventSize = 5 * 32

// MarshalBinary encodes the event as five 32-byte big-endian words:
// previousState, newState, actor (left-padded), transitionId, unix timestamp.
func (e TransitionEvent) MarshalBinary() ([]byte, error) {
	buf := make([]byte, EventSize)
	copy(buf[0:32], e.PreviousState[:])
	copy(buf[32:64], e.NewState[:])
	copy(buf[64+12:96], e.Actor[:])
	binary.BigEndian.PutUint64(buf[96+24:128], uint64(e.TransitionID))
	binary.BigEndian.PutUint64(buf[128+24:160], uint64(e.Timestamp.Unix()))
	return buf, nil
}

// UnmarshalBinary decodes the layout produced by MarshalBinary.
func (e *TransitionEvent) UnmarshalBinary(data []byte) error {
	if len(data) != EventSize {
		return fmt.Errorf("transition event: want %d bytes, got %d", EventSize, len(data))
	}
	copy(e.PreviousState[:], data[0:32])
	copy(e.NewState[:], data[32:64])
	copy(e.Actor[:], data[64+12:96])
	e.TransitionID = TransitionID(binary.BigEndian.Uint64(data[96+24 : 128]))
	e.Timestamp = time.Unix(int64(binary.BigEndian.Uint64(data[128+24:160])), 0).UTC()
	return nil
}

// Record converts the event into its history representation.
func (e TransitionEvent) Record() TransitionRecord {
	return TransitionRecord{
		From:         e.PreviousState,
		To:           e.NewState,
		Actor:        e.Actor,
		TransitionID: e.TransitionID,
		Timestamp:    e.Timestamp,
	}
}

// HookEvent describes one hook invocation.
type HookEvent struct {
	TransitionID TransitionID  `json:"transition_id"`
	Phase        Phase         `json:"phase"`
	Target       Address       `json:"target"`
	Actor        Address       `json:"actor"`
	Duration     time.Duration `json:"duration"`
	Err          error         `json:"-"`
}

// Failed reports whether the hook was skipped because of an error, panic or budget overrun.
func (h *HookEvent) Failed() bool {
	return h.Err != nil
}

// LifecycleHooks defines callbacks for engine observability.
// They are the operator-facing diagnostic channel; none of them can affect a transition.
type LifecycleHooks struct {
	OnTransition func(context.Context, *TransitionEvent)
	OnRejected   func(context.Context, *TransitionError)
	OnHookReturn func(context.Context, *HookEvent)
}
