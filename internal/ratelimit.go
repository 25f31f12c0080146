package internal

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

var (
	ErrRateLimited = errors.New("rate limited")
	ErrDailyLimit  = errors.New("daily request limit reached")
)

const (
	PerUserDailyLimit = 100
	PerAppDailyLimit  = 1667
)

// DailyCounter counts requests inside one UTC day. The window only moves
// forward through Rollover.
type DailyCounter struct {
	mu          sync.Mutex
	limit       int
	count       int
	windowStart time.Time
	clock       Clock
}

func NewDailyCounter(limit int, clock Clock) *DailyCounter {
	if clock == nil {
		clock = NewRealClock()
	}
	return &DailyCounter{
		limit:       limit,
		windowStart: startOfDay(clock.Now()),
		clock:       clock,
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Rollover resets the count when now falls on a later day than the current
// window. It reports whether a reset happened.
func (c *DailyCounter) Rollover(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollover(now)
}

func (c *DailyCounter) rollover(now time.Time) bool {
	day := startOfDay(now)
	if !day.After(c.windowStart) {
		return false
	}
	c.windowStart = day
	c.count = 0
	return true
}

func (c *DailyCounter) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover(c.clock.Now())
	return c.count < c.limit
}

func (c *DailyCounter) Record() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover(c.clock.Now())
	c.count++
}

func (c *DailyCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func (c *DailyCounter) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover(c.clock.Now())
	return max(c.limit-c.count, 0)
}

type RateLimitInfo struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// ParseRateLimit reads the x-rate-limit-* headers. ok is false when the reset
// header is absent or unparseable.
func ParseRateLimit(h http.Header) (info RateLimitInfo, ok bool) {
	info.Limit, _ = strconv.Atoi(h.Get("x-rate-limit-limit"))
	info.Remaining, _ = strconv.Atoi(h.Get("x-rate-limit-remaining"))
	reset, err := strconv.ParseInt(h.Get("x-rate-limit-reset"), 10, 64)
	if err != nil {
		return info, false
	}
	info.Reset = time.Unix(reset, 0).UTC()
	return info, true
}

// Backoff is how long to wait before the window resets, never negative.
func (i RateLimitInfo) Backoff(now time.Time) time.Duration {
	return max(i.Reset.Sub(now), 0)
}

type RateLimitError struct {
	Info RateLimitInfo
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry in %s", e.Wait)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
