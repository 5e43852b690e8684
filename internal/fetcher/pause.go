package fetcher

import (
	"context"
	"fmt"
	"time"
)

// Pauser sleeps for a duration or until the context ends.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration) error
}

// TimerPauser sleeps on a timer.
type TimerPauser struct{}

// Pause blocks for delay and returns early with the context error.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctxErr(ctx)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctxErr(ctx)
	case <-timer.C:
		return nil
	}
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pause interrupted: %w", err)
	}
	return nil
}
