package scenario

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/go-kthread/kthread"
	"github.com/joeycumines/logiface"
)

// Clock selects the source of timer interrupts.
type Clock int

const (
	// ClockVirtual advances time only while the processor is idle, or a
	// thread is busy. Runs are deterministic.
	ClockVirtual Clock = iota
	// ClockRealtime raises a timer interrupt every tick interval.
	ClockRealtime
)

func (c Clock) String() string {
	switch c {
	case ClockVirtual:
		return "virtual"
	case ClockRealtime:
		return "realtime"
	default:
		return "unknown"
	}
}

// ParseClock parses the String form of a Clock.
func ParseClock(s string) (Clock, error) {
	switch s {
	case "virtual":
		return ClockVirtual, nil
	case "realtime":
		return ClockRealtime, nil
	default:
		return 0, fmt.Errorf("scenario: unknown clock %q", s)
	}
}

type runOptions struct {
	logger          *logiface.Logger[logiface.Event]
	tracer          kthread.Tracer
	runID           string
	clock           Clock
	tickInterval    time.Duration
	metrics         bool
	invariantChecks bool
	logStats        bool
}

// Option configures Run.
type Option interface {
	applyRun(*runOptions)
}

type optionImpl struct {
	applyRunFunc func(*runOptions)
}

func (o *optionImpl) applyRun(opts *runOptions) {
	o.applyRunFunc(opts)
}

// WithLogger sets the structured logger, shared with the scheduler.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *runOptions) {
		opts.logger = logger
	}}
}

// WithTracer registers a scheduling event receiver.
func WithTracer(tracer kthread.Tracer) Option {
	return &optionImpl{func(opts *runOptions) {
		opts.tracer = tracer
	}}
}

// WithRunID sets the identifier attached to the run's log messages and
// result. Defaults to a random UUID.
func WithRunID(id string) Option {
	return &optionImpl{func(opts *runOptions) {
		opts.runID = id
	}}
}

// WithClock selects the clock. Defaults to ClockVirtual.
func WithClock(clock Clock) Option {
	return &optionImpl{func(opts *runOptions) {
		opts.clock = clock
	}}
}

// WithTickInterval sets the real time between ticks, for ClockRealtime.
func WithTickInterval(d time.Duration) Option {
	return &optionImpl{func(opts *runOptions) {
		opts.tickInterval = d
	}}
}

// WithMetrics enables the scheduler's ready-wait metrics, see Result.Metrics.
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *runOptions) {
		opts.metrics = enabled
	}}
}

// WithInvariantChecks checks the scheduler's invariants on every dispatch.
func WithInvariantChecks(enabled bool) Option {
	return &optionImpl{func(opts *runOptions) {
		opts.invariantChecks = enabled
	}}
}

// WithLogStats logs the scheduler's statistics at the end of a run.
func WithLogStats(enabled bool) Option {
	return &optionImpl{func(opts *runOptions) {
		opts.logStats = enabled
	}}
}

func resolveOptions(opts []Option) *runOptions {
	cfg := &runOptions{clock: ClockVirtual}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyRun(cfg)
	}
	if cfg.runID == `` {
		cfg.runID = uuid.NewString()
	}
	return cfg
}
