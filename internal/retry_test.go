package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"eof", io.ErrUnexpectedEOF, true},
		{"reset", syscall.ECONNRESET, true},
		{"rate limit", &RateLimitError{Wait: time.Second}, true},
		{"x 503", &XAPIError{StatusCode: 503}, true},
		{"x 403", &XAPIError{StatusCode: 403}, false},
		{"x 408", &XAPIError{StatusCode: 408}, true},
		{"message", errors.New("upstream overloaded"), true},
		{"hard", errors.New("invalid request"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestRetryPolicyStopsOnPermanentError(t *testing.T) {
	calls := 0
	p := noWaitPolicy(5)
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("bad request")
	})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := noWaitPolicy(5)
	err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyBackoffSchedule(t *testing.T) {
	clock := newStepClock(testEpoch)
	p := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     func(n int) time.Duration { return time.Duration(n) * time.Second },
		Clock:       clock,
	}
	err := p.Do(context.Background(), func(context.Context) error { return errTransient })
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Slept())
}
