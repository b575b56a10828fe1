package redis

import (
	"context"
	"errors"
	"fmt"

	backend "github.com/redis/go-redis/v9"
)

// PauseFlag implements ports.PauseSwitch with a Redis key holding "1" while
// paused. A missing key means running.
type PauseFlag struct {
	client *backend.Client
	key    string
}

// NewPauseFlag creates a flag stored at key.
func NewPauseFlag(client *backend.Client, key string) *PauseFlag {
	return &PauseFlag{client: client, key: key}
}

func (p *PauseFlag) Paused(ctx context.Context) (bool, error) {
	v, err := p.client.Get(ctx, p.key).Result()
	if errors.Is(err, backend.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read pause flag: %w", err)
	}
	return v == "1", nil
}

// Set pauses or resumes every engine reading this flag.
func (p *PauseFlag) Set(ctx context.Context, paused bool) error {
	var err error
	if paused {
		err = p.client.Set(ctx, p.key, "1", 0).Err()
	} else {
		err = p.client.Del(ctx, p.key).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to write pause flag: %w", err)
	}
	return nil
}
