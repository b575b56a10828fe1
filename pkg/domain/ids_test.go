package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateID_String(t *testing.T) {
	tests := []struct {
		name string
		id   StateID
		want string
	}{
		{"ascii name", NewStateID("PENDING"), "PENDING"},
		{"zero", StateID{}, ""},
		{"binary falls back to hex", StateID{0xff}, "0xff00000000000000000000000000000000000000000000000000000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.String())
		})
	}
}

func TestParseStateID(t *testing.T) {
	id, err := ParseStateID("APPROVED")
	require.NoError(t, err)
	assert.Equal(t, NewStateID("APPROVED"), id)

	hexID, err := ParseStateID("0xff00000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, StateID{0xff}, hexID)

	_, err = ParseStateID("THIS_NAME_IS_DEFINITELY_LONGER_THAN_32_BYTES")
	assert.Error(t, err)
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	assert.Equal(t, byte(0xaa), a[19])
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", a.Hex())

	noPrefix, err := ParseAddress("00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	assert.Equal(t, a, noPrefix)

	_, err = ParseAddress("0x1234")
	assert.Error(t, err)

	_, err = ParseAddress("0xzz000000000000000000000000000000000000aa")
	assert.Error(t, err)
}

func TestRecord_JSONUsesReadableIDs(t *testing.T) {
	rec := TransitionRecord{
		From:         NewStateID("INITIAL"),
		To:           NewStateID("PENDING"),
		Actor:        MustAddress("0x00000000000000000000000000000000000000aa"),
		TransitionID: 1,
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"from":"INITIAL"`)
	assert.Contains(t, string(data), `"actor":"0x00000000000000000000000000000000000000aa"`)

	var back TransitionRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rec.From, back.From)
	assert.Equal(t, rec.Actor, back.Actor)
}

func TestHistoryIndex(t *testing.T) {
	assert.Equal(t, uint64(0), HistoryIndex(1))
	assert.Equal(t, uint64(4), HistoryIndex(5))
	assert.Equal(t, uint64(0), HistoryIndex(0))
}
