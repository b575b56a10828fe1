package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionEvent_BinaryLayout(t *testing.T) {
	ev := TransitionEvent{
		PreviousState: NewStateID("INITIAL"),
		NewState:      NewStateID("PENDING"),
		Actor:         MustAddress("0x1111111111111111111111111111111111111111"),
		TransitionID:  0x0102,
		Timestamp:     time.Unix(1700000000, 0),
	}

	data, err := ev.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, EventSize)

	// Word layout is consumed by external indexers and must not drift.
	assert.Equal(t, []byte("INITIAL"), data[0:7])
	assert.Equal(t, []byte("PENDING"), data[32:39])
	assert.Equal(t, make([]byte, 12), data[64:76], "actor is left-padded")
	assert.Equal(t, byte(0x11), data[76])
	assert.Equal(t, byte(0x01), data[126])
	assert.Equal(t, byte(0x02), data[127])
	assert.Equal(t, byte(0x65), data[156]) // 1700000000 = 0x6553F100

	var back TransitionEvent
	require.NoError(t, back.UnmarshalBinary(data))
	assert.Equal(t, ev.PreviousState, back.PreviousState)
	assert.Equal(t, ev.Actor, back.Actor)
	assert.Equal(t, ev.TransitionID, back.TransitionID)
	assert.True(t, ev.Timestamp.Equal(back.Timestamp))

	assert.Error(t, back.UnmarshalBinary(data[:10]))
}

func TestTransitionError_Unwrap(t *testing.T) {
	err := fmt.Errorf("api: %w", &TransitionError{
		From:         NewStateID("A"),
		To:           NewStateID("B"),
		TransitionID: 7,
		Err:          ErrUnauthorized,
	})

	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.False(t, errors.Is(err, ErrPaused))
	assert.True(t, IsTransitionError(err))
	assert.Contains(t, err.Error(), "transition 7 from 'A' to 'B'")
}
