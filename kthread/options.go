package kthread

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-kthread/palloc"
	"github.com/joeycumines/logiface"
)

const (
	// PriMin is the lowest priority, used by the idle thread.
	PriMin = 0
	// PriDefault is the priority of the bootstrap thread.
	PriDefault = 31
	// PriMax is the highest priority.
	PriMax = 63
	// TimeSlice is the number of timer ticks a thread may run before the timer
	// interrupt requests a yield.
	TimeSlice = 4
	// DonationDepth bounds how many lock holders a single donation reaches.
	DonationDepth = 8
)

// PageAllocator supplies the storage each thread record is accounted against.
// It is implemented by [palloc.Pool].
type PageAllocator interface {
	GetPage() (palloc.Page, error)
	FreePage(page palloc.Page)
}

// schedulerOptions holds configuration options for Scheduler creation.
type schedulerOptions struct {
	logger          *logiface.Logger[logiface.Event]
	allocator       PageAllocator
	activate        func(*Thread)
	teardown        func(*Thread)
	halt            func()
	tracer          Tracer
	warnRates       map[time.Duration]int
	mainName        string
	priMin          int
	priDefault      int
	priMax          int
	mainPriority    int
	timeSlice       int
	donationDepth   int
	metricsEnabled  bool
	invariantChecks bool
	mainPrioritySet bool
}

// Option configures a Scheduler instance.
type Option interface {
	applyScheduler(*schedulerOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applySchedulerFunc func(*schedulerOptions) error
}

func (o *optionImpl) applyScheduler(opts *schedulerOptions) error {
	return o.applySchedulerFunc(opts)
}

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithPageAllocator replaces the default [palloc.Pool] of
// [palloc.DefaultCapacity] pages.
func WithPageAllocator(allocator PageAllocator) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if allocator == nil {
			return fmt.Errorf("%w: nil page allocator", ErrInvalidOption)
		}
		opts.allocator = allocator
		return nil
	}}
}

// WithTimeSlice sets the number of ticks after which the running thread is
// preempted. Defaults to [TimeSlice].
func WithTimeSlice(ticks int) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if ticks <= 0 {
			return fmt.Errorf("%w: time slice %d", ErrInvalidOption, ticks)
		}
		opts.timeSlice = ticks
		return nil
	}}
}

// WithDonationDepth bounds the number of holders a donation propagates
// through. Defaults to [DonationDepth].
func WithDonationDepth(depth int) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if depth <= 0 {
			return fmt.Errorf("%w: donation depth %d", ErrInvalidOption, depth)
		}
		opts.donationDepth = depth
		return nil
	}}
}

// WithPriorityBounds sets the priority range and the default priority.
// Requires lowest <= def <= highest.
func WithPriorityBounds(lowest, def, highest int) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if lowest > def || def > highest {
			return fmt.Errorf("%w: priority bounds %d <= %d <= %d", ErrInvalidOption, lowest, def, highest)
		}
		opts.priMin, opts.priDefault, opts.priMax = lowest, def, highest
		return nil
	}}
}

// WithMainThread names the bootstrap thread and sets its priority.
func WithMainThread(name string, priority int) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.mainName = name
		opts.mainPriority = priority
		opts.mainPrioritySet = true
		return nil
	}}
}

// WithActivateHook registers a function called with the incoming thread
// before every dispatch, e.g. to switch address spaces.
func WithActivateHook(fn func(next *Thread)) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.activate = fn
		return nil
	}}
}

// WithTeardownHook registers a function called with the exiting thread at
// the start of [Scheduler.Exit].
func WithTeardownHook(fn func(t *Thread)) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.teardown = fn
		return nil
	}}
}

// WithHaltHook registers the function the idle thread calls instead of
// waiting for an interrupt. The hook must eventually [Scheduler.Raise] an
// interrupt, or block until another goroutine does. A virtual clock uses it
// to advance time only when the processor would otherwise be idle.
func WithHaltHook(fn func()) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.halt = fn
		return nil
	}}
}

// WithTracer registers a receiver for scheduling events.
func WithTracer(tracer Tracer) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.tracer = tracer
		return nil
	}}
}

// WithMetrics enables ready-wait metrics, accessible via Scheduler.Metrics().
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithInvariantChecks runs [Scheduler.CheckInvariants] on every dispatch,
// treating any violation as fatal. Intended for tests.
func WithInvariantChecks(enabled bool) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.invariantChecks = enabled
		return nil
	}}
}

// WithWarnRateLimits configures the per-thread rate limits applied to
// warnings, such as truncated donation chains. See catrate.NewLimiter.
func WithWarnRateLimits(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.warnRates = rates
		return nil
	}}
}

// resolveOptions applies Option instances to schedulerOptions.
func resolveOptions(opts []Option) (*schedulerOptions, error) {
	cfg := &schedulerOptions{
		mainName:      "main",
		priMin:        PriMin,
		priDefault:    PriDefault,
		priMax:        PriMax,
		timeSlice:     TimeSlice,
		donationDepth: DonationDepth,
		warnRates: map[time.Duration]int{
			time.Second: 1,
			time.Minute: 10,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	if !cfg.mainPrioritySet {
		cfg.mainPriority = cfg.priDefault
	}
	if cfg.mainPriority < cfg.priMin || cfg.mainPriority > cfg.priMax {
		return nil, fmt.Errorf("%w: main priority %d outside [%d, %d]", ErrInvalidOption, cfg.mainPriority, cfg.priMin, cfg.priMax)
	}
	if cfg.allocator == nil {
		cfg.allocator = palloc.New(palloc.DefaultCapacity)
	}
	return cfg, nil
}
