package kthread

import (
	"math"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"golang.org/x/exp/slices"
)

// Scheduler owns every thread record and queue for one logical processor.
type Scheduler struct {
	logger      *logiface.Logger[logiface.Event]
	allocator   PageAllocator
	activate    func(*Thread)
	teardown    func(*Thread)
	halter      func()
	tracer      Tracer
	warnLimiter *catrate.Limiter
	metrics     *Metrics
	threads     map[TID]*Thread
	current     *Thread
	initial     *Thread
	idle        *Thread
	ready       threadQueue
	sleepers    threadQueue
	destruction threadQueue
	intr        interruptController
	stats       Stats
	// earliestWake is the smallest wake tick in the sleep queue, or
	// math.MaxInt64 if it is empty.
	earliestWake    int64
	ticks           int64
	sliceTicks      int
	nextTID         TID
	priMin          int
	priMax          int
	timeSlice       int
	donationDepth   int
	invariantChecks bool
	started         bool
}

// New initializes a scheduler. The calling goroutine becomes the bootstrap
// thread, which is running, with interrupts disabled. Call [Scheduler.Start]
// to create the idle thread and enable interrupts.
func New(opts ...Option) (*Scheduler, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		logger:          cfg.logger,
		allocator:       cfg.allocator,
		activate:        cfg.activate,
		teardown:        cfg.teardown,
		halter:          cfg.halt,
		tracer:          cfg.tracer,
		threads:         make(map[TID]*Thread),
		earliestWake:    math.MaxInt64,
		nextTID:         1,
		priMin:          cfg.priMin,
		priMax:          cfg.priMax,
		timeSlice:       cfg.timeSlice,
		donationDepth:   cfg.donationDepth,
		invariantChecks: cfg.invariantChecks,
	}
	s.ready = threadQueue{s: s, kind: queueReady}
	s.sleepers = threadQueue{s: s, kind: queueSleep}
	s.destruction = threadQueue{s: s, kind: queueDestruction}
	s.intr.signal = make(chan struct{}, 1)
	s.intr.level = IntrOff
	if len(cfg.warnRates) != 0 {
		s.warnLimiter = catrate.NewLimiter(cfg.warnRates)
	}
	if cfg.metricsEnabled {
		s.metrics = &Metrics{}
	}

	t := s.newThread(cfg.mainName, cfg.mainPriority)
	t.status = StatusRunning
	s.threads[t.tid] = t
	s.initial = t
	s.current = t

	s.logger.Debug().
		Stringer(`thread`, t).
		Int(`priority`, t.priority).
		Int(`time_slice`, s.timeSlice).
		Int(`donation_depth`, s.donationDepth).
		Log(`scheduler initialized`)

	return s, nil
}

func (s *Scheduler) newThread(name string, priority int) *Thread {
	t := &Thread{
		sched:        s,
		resume:       make(chan struct{}, 1),
		name:         truncateName(name),
		tid:          s.nextTID,
		priority:     priority,
		basePriority: priority,
		magic:        threadMagic,
		status:       StatusBlocked,
	}
	s.nextTID++
	return t
}

// Start creates the idle thread and enables interrupts, returning once the
// idle thread has run. It must be called once, by the bootstrap thread,
// before any thread blocks.
func (s *Scheduler) Start() {
	if s.started {
		s.fatal(`start`, "scheduler already started")
	}
	s.started = true
	starter := s.Current()
	if s.Create("idle", s.priMin, s.idleMain, starter) == TIDError {
		s.fatal(`start`, "unable to create the idle thread")
	}
	s.Enable()
	old := s.Disable()
	if s.idle == nil {
		s.Block()
	}
	s.SetLevel(old)
	s.logger.Debug().
		Stringer(`idle`, s.idle).
		Log(`scheduler started`)
}

// Create starts a new thread running fn(arg), at the given priority,
// returning its identifier, or [TIDError] if no page could be allocated.
// If the new thread outranks the caller, the caller yields before Create
// returns.
func (s *Scheduler) Create(name string, priority int, fn Func, arg any) TID {
	if fn == nil {
		s.fatal(`create`, "nil thread function")
	}
	s.checkPriority(`create`, priority)

	page, err := s.allocator.GetPage()
	if err != nil {
		s.stats.CreateFailures++
		s.logger.Err().
			Limit().
			Str(`name`, name).
			Err(err).
			Log(`thread allocation failed`)
		return TIDError
	}

	old := s.Disable()
	t := s.newThread(name, priority)
	t.page = page
	t.entry = fn
	t.arg = arg
	s.threads[t.tid] = t
	s.stats.Created++
	s.trace(TraceCreate, t, nil)
	s.logger.Debug().
		Stringer(`thread`, t).
		Int(`priority`, priority).
		Log(`thread created`)
	go t.launch()
	s.SetLevel(old)

	s.Unblock(t)
	if priority > s.Current().priority {
		s.Yield()
	}
	return t.tid
}

// Block puts the running thread to sleep until it is passed to
// [Scheduler.Unblock]. Interrupts must be disabled, and the caller must not
// be an interrupt handler.
func (s *Scheduler) Block() {
	if s.intr.inContext {
		s.fatal(`block`, "called from interrupt context")
	}
	if s.intr.level != IntrOff {
		s.fatal(`block`, "interrupts enabled")
	}
	s.doSchedule(StatusBlocked)
}

// Unblock moves a blocked thread to the ready queue. It never preempts the
// running thread, so callers that need preemption follow it with
// [Scheduler.CheckPreempt].
func (s *Scheduler) Unblock(t *Thread) {
	if !t.IsValid() {
		s.fatal(`unblock`, "invalid thread %v", t)
	}
	old := s.Disable()
	if t.status != StatusBlocked {
		s.fatal(`unblock`, "%v is %v, not blocked", t, t.status)
	}
	s.makeReady(t)
	t.status = StatusReady
	s.SetLevel(old)
}

func (s *Scheduler) makeReady(t *Thread) {
	s.ready.insertOrdered(t)
	t.readyAt = s.ticks
	if n := s.ready.len(); n > s.stats.PeakReady {
		s.stats.PeakReady = n
	}
	s.trace(TraceReady, t, nil)
}

// Yield gives up the processor. The running thread stays ready, behind any
// ready threads of equal priority, and may be dispatched again immediately.
func (s *Scheduler) Yield() {
	if s.intr.inContext {
		s.fatal(`yield`, "called from interrupt context")
	}
	cur := s.Current()
	old := s.Disable()
	if cur == s.idle {
		// never queued, dispatched only when nothing else is ready
		s.doSchedule(StatusBlocked)
	} else {
		s.makeReady(cur)
		s.doSchedule(StatusReady)
	}
	s.SetLevel(old)
}

// Exit terminates the running thread. It never returns. The thread's storage
// is released later, by whichever thread dispatches next. Deferred calls
// pending in the exiting goroutine run after the processor is handed off,
// so they must not touch kernel state.
func (s *Scheduler) Exit() {
	if s.intr.inContext {
		s.fatal(`exit`, "called from interrupt context")
	}
	cur := s.Current()
	if s.teardown != nil {
		s.teardown(cur)
	}
	s.Disable()
	for _, d := range cur.donors {
		d.donee = nil
	}
	cur.donors = nil
	s.trace(TraceExit, cur, nil)
	s.logger.Debug().
		Stringer(`thread`, cur).
		Log(`thread exiting`)
	s.doSchedule(StatusDying)
	s.fatal(`exit`, "%v resumed after exit", cur)
}

// doSchedule reclaims dead threads, sets the running thread's status and
// dispatches the next thread. Interrupts must be disabled.
func (s *Scheduler) doSchedule(status Status) {
	if s.intr.level != IntrOff {
		s.fatal(`schedule`, "interrupts enabled")
	}
	cur := s.current
	if cur.status != StatusRunning {
		s.fatal(`schedule`, "%v is %v, not running", cur, cur.status)
	}
	s.purge()
	cur.status = status
	s.schedule()
}

// purge releases the storage of every thread in the destruction queue.
func (s *Scheduler) purge() {
	for s.destruction.len() != 0 {
		victim := s.destruction.popFront()
		if victim == s.current {
			s.fatal(`reclaim`, "%v would reclaim itself", victim)
		}
		delete(s.threads, victim.tid)
		page := victim.page
		victim.page = 0
		victim.magic = 0
		s.allocator.FreePage(page)
		s.stats.Reclaimed++
		s.trace(TraceReclaim, victim, nil)
		s.logger.Debug().
			Stringer(`thread`, victim).
			Log(`thread reclaimed`)
	}
}

func (s *Scheduler) schedule() {
	cur := s.current
	next := s.nextThreadToRun()
	if cur.status == StatusRunning {
		s.fatal(`schedule`, "outgoing %v still running", cur)
	}
	if !next.IsValid() {
		s.fatal(`schedule`, "invalid next thread %v", next)
	}

	next.status = StatusRunning
	s.sliceTicks = 0
	if s.metrics != nil && next != s.idle {
		s.metrics.ReadyWait.Record(s.ticks - next.readyAt)
	}
	if s.activate != nil {
		s.activate(next)
	}

	if cur == next {
		return
	}
	if cur.status == StatusDying && cur != s.initial {
		s.destruction.pushBack(cur)
	}
	s.current = next
	s.stats.ContextSwitches++
	s.trace(TraceDispatch, next, cur)
	s.logger.Trace().
		Stringer(`from`, cur).
		Stringer(`to`, next).
		Log(`context switch`)
	if s.invariantChecks {
		if err := s.CheckInvariants(); err != nil {
			s.fatal(`schedule`, "%w", err)
		}
	}
	s.switchThreads(cur, next)
}

func (s *Scheduler) nextThreadToRun() *Thread {
	if t := s.ready.popFront(); t != nil {
		return t
	}
	if s.idle == nil {
		s.fatal(`schedule`, "%w", ErrNoRunnable)
	}
	return s.idle
}

func (s *Scheduler) checkPriority(op string, priority int) {
	if priority < s.priMin || priority > s.priMax {
		s.fatal(op, "priority %d outside [%d, %d]", priority, s.priMin, s.priMax)
	}
}

// Current returns the running thread.
func (s *Scheduler) Current() *Thread {
	t := s.current
	if !t.IsValid() {
		s.fatal(`current`, "invalid running thread %v", t)
	}
	if t.status != StatusRunning {
		s.fatal(`current`, "%v is %v, not running", t, t.status)
	}
	return t
}

// TID returns the running thread's identifier.
func (s *Scheduler) TID() TID { return s.Current().tid }

// Name returns the running thread's name.
func (s *Scheduler) Name() string { return s.Current().name }

// Priority returns the running thread's effective priority.
func (s *Scheduler) Priority() int { return s.Current().priority }

// Idle returns the idle thread, nil before [Scheduler.Start].
func (s *Scheduler) Idle() *Thread { return s.idle }

// Lookup returns the live thread with the given identifier.
func (s *Scheduler) Lookup(tid TID) (*Thread, bool) {
	t, ok := s.threads[tid]
	return t, ok
}

// Threads returns every thread that has not been reclaimed, ordered by TID.
func (s *Scheduler) Threads() []*Thread {
	threads := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		threads = append(threads, t)
	}
	slices.SortFunc(threads, func(a, b *Thread) int {
		return int(a.tid) - int(b.tid)
	})
	return threads
}

// Ready returns the ready queue in dispatch order.
func (s *Scheduler) Ready() []*Thread {
	return s.ready.snapshot()
}

// Sleeping returns the sleep queue in insertion order.
func (s *Scheduler) Sleeping() []*Thread {
	return s.sleepers.snapshot()
}

// Ticks returns the number of timer ticks observed via [Scheduler.Tick].
func (s *Scheduler) Ticks() int64 {
	return s.ticks
}
