package redis

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/aretw0/switchyard/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// AuditStream implements ports.AuditSink by appending to a Redis stream.
// Each entry carries the 160-byte record as hex plus readable fields.
type AuditStream struct {
	client *backend.Client
	stream string
	maxLen int64
}

// NewAuditStream creates a sink appending to stream. maxLen caps the stream
// length approximately; zero keeps every entry.
func NewAuditStream(client *backend.Client, stream string, maxLen int64) *AuditStream {
	return &AuditStream{client: client, stream: stream, maxLen: maxLen}
}

func (a *AuditStream) Emit(ctx context.Context, ev domain.TransitionEvent) error {
	raw, err := ev.MarshalBinary()
	if err != nil {
		return err
	}

	args := &backend.XAddArgs{
		Stream: a.stream,
		Values: map[string]any{
			"record":        hex.EncodeToString(raw),
			"from":          ev.PreviousState.String(),
			"to":            ev.NewState.String(),
			"actor":         ev.Actor.Hex(),
			"transition_id": strconv.FormatUint(uint64(ev.TransitionID), 10),
			"timestamp":     strconv.FormatInt(ev.Timestamp.Unix(), 10),
		},
	}
	if a.maxLen > 0 {
		args.MaxLen = a.maxLen
		args.Approx = true
	}
	if err := a.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// Read returns up to count audit records from the start of the stream.
func (a *AuditStream) Read(ctx context.Context, count int64) ([]domain.TransitionEvent, error) {
	msgs, err := a.client.XRangeN(ctx, a.stream, "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit stream: %w", err)
	}

	out := make([]domain.TransitionEvent, 0, len(msgs))
	for _, m := range msgs {
		v, _ := m.Values["record"].(string)
		raw, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("corrupt audit entry %s: %w", m.ID, err)
		}
		var ev domain.TransitionEvent
		if err := ev.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("corrupt audit entry %s: %w", m.ID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}
