package internal

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDailyCounterRollsOverAtUTCMidnight(t *testing.T) {
	clock := newStepClock(time.Date(2024, 11, 5, 23, 0, 0, 0, time.UTC))
	c := NewDailyCounter(2, clock)

	assert.True(t, c.Allow())
	c.Record()
	c.Record()
	assert.False(t, c.Allow())
	assert.Zero(t, c.Remaining())

	clock.Advance(59 * time.Minute)
	assert.False(t, c.Allow())

	clock.Advance(time.Minute)
	assert.True(t, c.Allow())
	assert.Equal(t, 2, c.Remaining())
	assert.Zero(t, c.Count())
}

func TestDailyCounterIgnoresPastDays(t *testing.T) {
	c := NewDailyCounter(1, newStepClock(testEpoch))
	c.Record()

	assert.False(t, c.Rollover(testEpoch.Add(-48*time.Hour)))
	assert.Equal(t, 1, c.Count())
	assert.True(t, c.Rollover(testEpoch.Add(24*time.Hour)))
	assert.Zero(t, c.Count())
}

func TestParseRateLimit(t *testing.T) {
	h := http.Header{}
	h.Set("x-rate-limit-limit", "300")
	h.Set("x-rate-limit-remaining", "0")
	h.Set("x-rate-limit-reset", "1730797500")

	info, ok := ParseRateLimit(h)
	assert.True(t, ok)
	assert.Equal(t, 300, info.Limit)
	assert.Zero(t, info.Remaining)
	assert.Equal(t, time.Unix(1730797500, 0).UTC(), info.Reset)

	assert.Equal(t, 5*time.Minute, info.Backoff(info.Reset.Add(-5*time.Minute)))
	assert.Zero(t, info.Backoff(info.Reset.Add(time.Minute)))

	_, ok = ParseRateLimit(http.Header{})
	assert.False(t, ok)
}

func TestRateLimitErrorMatchesSentinel(t *testing.T) {
	var err error = &RateLimitError{Wait: time.Minute}
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.True(t, IsTransient(err))
}
