package internal

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the subset of clockwork.Clock the agent waits on.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

func NewRealClock() Clock {
	return clockwork.NewRealClock()
}

func Sleep(ctx context.Context, clock Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}

func SleepUntil(ctx context.Context, clock Clock, t time.Time) error {
	return Sleep(ctx, clock, t.Sub(clock.Now()))
}
