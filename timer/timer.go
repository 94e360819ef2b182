// Package timer implements the system timer: a tick counter driven by a
// periodic interrupt, and sleeping for a number of ticks.
//
// Ticks come either from a real-time source, see [Timer.Run], or from a
// virtual clock that only advances when the processor would otherwise idle,
// see [Timer.Halt].
package timer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-kthread/kthread"
	"github.com/joeycumines/logiface"
)

// Frequency is the default number of timer interrupts per second.
const Frequency = 100

// Timer counts timer interrupts for a scheduler.
type Timer struct {
	s         *kthread.Scheduler
	logger    *logiface.Logger[logiface.Event]
	hook      func(ticks int64)
	ticks     atomic.Int64
	frequency int
}

// New returns a timer driving s. The timer does nothing until interrupts
// are raised, via [Timer.Raise], [Timer.Run] or [Timer.Halt].
func New(s *kthread.Scheduler, opts ...Option) (*Timer, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Timer{
		s:         s,
		logger:    cfg.logger,
		hook:      cfg.hook,
		frequency: cfg.frequency,
	}, nil
}

// Frequency returns the number of ticks per second.
func (x *Timer) Frequency() int {
	return x.frequency
}

// Ticks returns the number of ticks since the timer was created. It is safe
// to call from any goroutine.
func (x *Timer) Ticks() int64 {
	return x.ticks.Load()
}

// Elapsed returns the number of ticks since then, a value previously
// returned by Ticks.
func (x *Timer) Elapsed(then int64) int64 {
	return x.Ticks() - then
}

// Sleep suspends the running thread for approximately n ticks. Interrupts
// must be on.
func (x *Timer) Sleep(n int64) {
	if n <= 0 {
		return
	}
	if x.s.IntrLevel() != kthread.IntrOn {
		panic("timer: sleep with interrupts off")
	}
	x.s.Sleep(x.Ticks() + n)
}

// SleepFor suspends the running thread for approximately d, rounded down to
// whole ticks. Durations shorter than one tick yield the processor instead.
func (x *Timer) SleepFor(d time.Duration) {
	if d <= 0 {
		return
	}
	if n := x.TicksFor(d); n > 0 {
		x.Sleep(n)
		return
	}
	x.s.Yield()
}

// TicksFor converts d to a whole number of ticks, rounding down.
func (x *Timer) TicksFor(d time.Duration) int64 {
	return int64(d) * int64(x.frequency) / int64(time.Second)
}

// Interval returns the real time between ticks.
func (x *Timer) Interval() time.Duration {
	return time.Second / time.Duration(x.frequency)
}

// Interrupt is the timer interrupt handler. It must run in interrupt
// context: use Raise to deliver it.
func (x *Timer) Interrupt() {
	now := x.ticks.Add(1)
	x.s.Tick()
	if x.s.EarliestWake() <= now {
		x.s.TickWake(now)
	}
	if x.hook != nil {
		x.hook(now)
	}
}

// Raise posts a timer interrupt. It is safe to call from any goroutine.
func (x *Timer) Raise() {
	x.s.Raise(x.Interrupt)
}

// Halt raises a timer interrupt. Registered as the scheduler's halt hook
// (kthread.WithHaltHook), it makes virtual time pass only while the
// processor is idle.
func (x *Timer) Halt() {
	x.Raise()
}

// Run raises a timer interrupt every interval of real time, until ctx is
// done. An interval <= 0 means [Timer.Interval].
func (x *Timer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = x.Interval()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	x.logger.Debug().
		Dur(`interval`, interval).
		Log(`timer started`)
	defer x.logger.Debug().Log(`timer stopped`)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			x.Raise()
		}
	}
}
