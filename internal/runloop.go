package internal

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// Cycler runs one pipeline pass.
type Cycler interface {
	RunCycle(ctx context.Context) CycleReport
}

// Window is one activation period.
type Window struct {
	Start time.Time
	End   time.Time
}

// RunLoop schedules cycles inside randomized activation windows. Cycles never
// overlap and a failing cycle never stops the loop.
type RunLoop struct {
	cycler Cycler
	cfg    ScheduleConfig
	clock  Clock
	rng    *rand.Rand
	logger *zap.Logger

	// OnCycle, if set, receives every finished report.
	OnCycle func(CycleReport)
}

func NewRunLoop(cycler Cycler, cfg ScheduleConfig, clock Clock, rng *rand.Rand, logger *zap.Logger) *RunLoop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = NewRealClock()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &RunLoop{
		cycler: cycler,
		cfg:    cfg,
		clock:  clock,
		rng:    rng,
		logger: logger.Named("runloop"),
	}
}

// uniform returns a duration in [lo, hi].
func (l *RunLoop) uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(l.rng.Int64N(int64(hi-lo)+1))
}

// NextWindow picks the next activation window relative to now.
func (l *RunLoop) NextWindow(now time.Time) Window {
	start := now.Add(l.uniform(0, l.cfg.ActivationDelayMax))
	return Window{
		Start: start,
		End:   start.Add(l.uniform(l.cfg.ActiveMin, l.cfg.ActiveMax)),
	}
}

func (l *RunLoop) NextInterval() time.Duration {
	return l.uniform(l.cfg.IntervalMin, l.cfg.IntervalMax)
}

// Run blocks until ctx is cancelled.
func (l *RunLoop) Run(ctx context.Context) error {
	if l.cfg.InitialRun {
		l.logger.Info("initial run")
		l.runOnce(ctx)
	}

	for {
		w := l.NextWindow(l.clock.Now())
		l.logger.Info("next activation window",
			zap.Time("start", w.Start),
			zap.Time("end", w.End))

		if err := SleepUntil(ctx, l.clock, w.Start); err != nil {
			return nil
		}

		for l.clock.Now().Before(w.End) {
			l.runOnce(ctx)
			if ctx.Err() != nil {
				return nil
			}

			next := l.clock.Now().Add(l.NextInterval())
			if !next.Before(w.End) {
				break
			}
			l.logger.Debug("next cycle", zap.Time("at", next))
			if err := SleepUntil(ctx, l.clock, next); err != nil {
				return nil
			}
		}
		l.logger.Info("activation window closed")
	}
}

func (l *RunLoop) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("cycle panicked",
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	report := l.cycler.RunCycle(ctx)
	if err := report.Err(); err != nil {
		l.logger.Warn("cycle finished with failures", zap.Error(err))
	}
	if l.OnCycle != nil {
		l.OnCycle(report)
	}
}
