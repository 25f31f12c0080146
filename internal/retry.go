package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/openai/openai-go/v2"
)

var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy is applied to every outbound call. Backoff receives the number
// of the attempt that just failed, starting at 1.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Retryable   func(error) bool
	Clock       Clock
}

func FixedBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// LLMRetryPolicy retries transient failures five times, one second apart.
func LLMRetryPolicy(clock Clock) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Backoff:     FixedBackoff(time.Second),
		Retryable:   IsTransient,
		Clock:       clock,
	}
}

func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	clock := p.Clock
	if clock == nil {
		clock = NewRealClock()
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if p.Backoff != nil {
			if serr := Sleep(ctx, clock, p.Backoff(attempt)); serr != nil {
				return serr
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
}

var transientMarkers = []string{
	"429",
	"rate limit",
	"too many requests",
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"temporarily unavailable",
	"overloaded",
	"unexpected eof",
}

// IsTransient reports whether err is worth retrying: rate limits, timeouts,
// connection failures and 5xx responses.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return isTransientStatus(apiErr.StatusCode)
	}
	var statusErr interface{ HTTPStatus() int }
	if errors.As(err, &statusErr) {
		return isTransientStatus(statusErr.HTTPStatus())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func isTransientStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}
