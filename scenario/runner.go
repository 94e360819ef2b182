package scenario

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/joeycumines/go-kthread/ksync"
	"github.com/joeycumines/go-kthread/kthread"
	"github.com/joeycumines/go-kthread/timer"
	"github.com/joeycumines/logiface"
)

const (
	minPriority = kthread.PriMin
	maxPriority = kthread.PriMax

	// DefaultMaxTicks bounds a run when the scenario sets no max_ticks.
	DefaultMaxTicks = 1_000_000
)

var (
	// ErrDeadlock indicates every thread was blocked with nothing sleeping.
	ErrDeadlock = errors.New("scenario: deadlock")
	// ErrTickLimit indicates the run exceeded its tick budget.
	ErrTickLimit = errors.New("scenario: tick limit exceeded")
)

// Result is the outcome of a run.
type Result struct {
	Name    string
	RunID   string
	Output  []string
	Stats   kthread.Stats
	Metrics *kthread.Metrics
	Ticks   int64
}

// Check compares the output transcript against want, line by line.
func (x *Result) Check(want []string) error {
	var errs []error
	for i := range max(len(want), len(x.Output)) {
		var got, exp string
		if i < len(x.Output) {
			got = x.Output[i]
		}
		if i < len(want) {
			exp = want[i]
		}
		switch {
		case i >= len(x.Output):
			errs = append(errs, fmt.Errorf("line %d: missing %q", i+1, exp))
		case i >= len(want):
			errs = append(errs, fmt.Errorf("line %d: unexpected %q", i+1, got))
		case got != exp:
			errs = append(errs, fmt.Errorf("line %d: got %q, want %q", i+1, got, exp))
		}
	}
	if len(errs) != 0 {
		return fmt.Errorf("%s: output mismatch: %w", x.Name, errors.Join(errs...))
	}
	return nil
}

// Run executes sc on a fresh scheduler, whose bootstrap thread is a new
// goroutine, returning once the main program and every thread it created
// have finished. A failed run leaves its kernel goroutines parked.
func Run(ctx context.Context, sc *Scenario, opts ...Option) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	cfg := resolveOptions(opts)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	x := &run{
		ctx:      ctx,
		cfg:      cfg,
		sc:       sc,
		logger:   cfg.logger.Clone().Str(`scenario`, sc.Name).Str(`run`, cfg.runID).Logger(),
		done:     make(chan outcome, 1),
		maxTicks: sc.MaxTicks,
	}
	if x.maxTicks == 0 {
		x.maxTicks = DefaultMaxTicks
	}
	go x.boot()

	select {
	case o := <-x.done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type outcome struct {
	result *Result
	err    error
}

// run is the state of a single scenario run. Fields other than done are
// only accessed by kernel threads.
type run struct {
	ctx      context.Context
	cfg      *runOptions
	sc       *Scenario
	logger   *logiface.Logger[logiface.Event]
	s        *kthread.Scheduler
	tm       *timer.Timer
	locks    map[string]*ksync.Lock
	semas    map[string]*ksync.Semaphore
	exited   *ksync.Semaphore
	done     chan outcome
	once     sync.Once
	output   []string
	maxTicks int64
	live     int
}

func (x *run) finish(o outcome) {
	x.once.Do(func() { x.done <- o })
}

// fail reports err, then parks the calling kernel goroutine for good.
func (x *run) fail(err error) {
	x.logger.Err().Err(err).Log(`scenario failed`)
	x.finish(outcome{err: fmt.Errorf("%s: %w", x.sc.Name, err)})
	select {}
}

// guard converts a panic on a kernel thread into a failed run.
func (x *run) guard() {
	if r := recover(); r != nil {
		err, ok := r.(error)
		if !ok {
			err = fmt.Errorf("%v", r)
		}
		x.fail(fmt.Errorf("panic: %w", err))
	}
}

func (x *run) boot() {
	defer x.guard()

	kopts := []kthread.Option{
		kthread.WithLogger(x.logger),
		kthread.WithMetrics(x.cfg.metrics),
		kthread.WithInvariantChecks(x.cfg.invariantChecks),
	}
	if x.cfg.tracer != nil {
		kopts = append(kopts, kthread.WithTracer(x.cfg.tracer))
	}
	if p := x.sc.MainPriority; p != nil {
		kopts = append(kopts, kthread.WithMainThread("main", *p))
	}
	if x.sc.TimeSlice != 0 {
		kopts = append(kopts, kthread.WithTimeSlice(x.sc.TimeSlice))
	}
	if x.sc.DonationDepth != 0 {
		kopts = append(kopts, kthread.WithDonationDepth(x.sc.DonationDepth))
	}
	if x.cfg.clock == ClockVirtual {
		kopts = append(kopts, kthread.WithHaltHook(func() { x.tm.Halt() }))
	}

	s, err := kthread.New(kopts...)
	if err != nil {
		x.finish(outcome{err: err})
		return
	}
	x.s = s
	x.tm, err = timer.New(s,
		timer.WithLogger(x.logger),
		timer.WithTickHook(x.onTick),
	)
	if err != nil {
		x.finish(outcome{err: err})
		return
	}
	x.locks = make(map[string]*ksync.Lock, len(x.sc.Locks))
	for _, name := range x.sc.Locks {
		x.locks[name] = ksync.NewLock(s, name)
	}
	x.semas = make(map[string]*ksync.Semaphore, len(x.sc.Semaphores))
	for name, value := range x.sc.Semaphores {
		x.semas[name] = ksync.NewSemaphore(s, value)
	}
	x.exited = ksync.NewSemaphore(s, 0)

	s.Start()
	if x.cfg.clock == ClockRealtime {
		go x.runTimer()
	}
	x.logger.Debug().Log(`scenario started`)

	x.steps(x.sc.Main)
	for x.live != 0 {
		x.exited.Down()
	}
	// the last thread to exit is reclaimed on the next switch
	s.Yield()

	if x.cfg.logStats {
		s.LogStats()
	}
	res := &Result{
		Name:    x.sc.Name,
		RunID:   x.cfg.runID,
		Output:  x.output,
		Stats:   s.Stats(),
		Metrics: s.Metrics(),
		Ticks:   x.tm.Ticks(),
	}
	x.logger.Debug().
		Int64(`ticks`, res.Ticks).
		Int(`lines`, len(res.Output)).
		Log(`scenario finished`)
	x.finish(outcome{result: res})
}

// runTimer drives the realtime clock until the run's context is done.
func (x *run) runTimer() {
	if err := x.tm.Run(x.ctx, x.cfg.tickInterval); err != nil && !errors.Is(err, context.Canceled) {
		x.logger.Debug().
			Err(err).
			Log(`timer stopped early`)
	}
}

// onTick fails the run if it is out of ticks, or nothing can ever run
// again.
func (x *run) onTick(ticks int64) {
	if ticks > x.maxTicks {
		x.fail(ErrTickLimit)
	}
	s := x.s
	if s.Current() == s.Idle() && len(s.Ready()) == 0 && s.EarliestWake() == math.MaxInt64 {
		x.fail(x.deadlock())
	}
}

func (x *run) deadlock() error {
	var blocked []string
	for _, t := range x.s.Threads() {
		if t.Status() != kthread.StatusBlocked || t == x.s.Idle() {
			continue
		}
		desc := t.String()
		if l, ok := t.WaitingOn().(*ksync.Lock); ok {
			desc += " waiting on " + l.Name()
		}
		blocked = append(blocked, desc)
	}
	return fmt.Errorf("%w: %s", ErrDeadlock, strings.Join(blocked, ", "))
}

func (x *run) create(name string) {
	spec := x.sc.Threads[name]
	x.live++
	tid := x.s.Create(name, spec.Priority, x.thread, spec.Steps)
	if tid == kthread.TIDError {
		x.fail(fmt.Errorf("unable to create thread %q", name))
	}
}

func (x *run) thread(arg any) {
	defer x.guard()
	x.steps(arg.([]Step))
	x.threadDone()
}

func (x *run) threadDone() {
	x.live--
	x.exited.Up()
}

func (x *run) steps(steps []Step) {
	for _, step := range steps {
		x.step(step)
	}
}

func (x *run) step(step Step) {
	s := x.s
	switch {
	case step.Create != ``:
		x.create(step.Create)
	case step.Acquire != ``:
		x.locks[step.Acquire].Acquire()
	case step.Release != ``:
		x.locks[step.Release].Release()
	case step.TryAcquire != ``:
		if !x.locks[step.TryAcquire].TryAcquire() {
			x.print("{name} failed to acquire " + step.TryAcquire)
		}
	case step.Down != ``:
		x.semas[step.Down].Down()
	case step.Up != ``:
		x.semas[step.Up].Up()
	case step.Print != ``:
		x.print(step.Print)
	case step.Sleep != nil:
		x.tm.Sleep(*step.Sleep)
	case step.Busy != nil:
		x.busy(*step.Busy)
	case step.SetPriority != nil:
		s.SetPriority(*step.SetPriority)
	case step.Repeat != nil:
		for range step.Repeat.Count {
			x.steps(step.Repeat.Steps)
		}
	case step.Yield:
		s.Yield()
	case step.Exit:
		x.threadDone()
		s.Exit()
	}
}

// busy keeps the processor for n ticks.
func (x *run) busy(n int64) {
	if x.cfg.clock == ClockVirtual {
		for range n {
			x.tm.Raise()
			x.s.Checkpoint()
		}
		return
	}
	start := x.tm.Ticks()
	for x.tm.Elapsed(start) < n {
		x.s.Checkpoint()
		runtime.Gosched()
	}
}

func (x *run) print(format string) {
	t := x.s.Current()
	line := strings.NewReplacer(
		`{name}`, t.Name(),
		`{tid}`, strconv.Itoa(int(t.TID())),
		`{priority}`, strconv.Itoa(t.Priority()),
		`{base}`, strconv.Itoa(t.BasePriority()),
		`{tick}`, strconv.FormatInt(x.tm.Ticks(), 10),
	).Replace(format)
	x.output = append(x.output, line)
	x.logger.Debug().
		Stringer(`thread`, t).
		Str(`line`, line).
		Log(`output`)
}
