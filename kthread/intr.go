package kthread

import (
	"sync"
)

// IntrLevel is the interrupt enable state of the processor.
type IntrLevel uint8

const (
	// IntrOff means interrupts are disabled.
	IntrOff IntrLevel = iota
	// IntrOn means interrupts are enabled.
	IntrOn
)

func (l IntrLevel) String() string {
	switch l {
	case IntrOff:
		return "off"
	case IntrOn:
		return "on"
	default:
		return "unknown"
	}
}

// interruptController models the processor's interrupt line. Only pending is
// shared with foreign goroutines; the remaining fields belong to whichever
// thread holds the processor.
type interruptController struct {
	mu            sync.Mutex
	pending       []func()
	signal        chan struct{}
	level         IntrLevel
	inContext     bool
	yieldOnReturn bool
}

func (x *interruptController) next() func() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.pending) == 0 {
		return nil
	}
	h := x.pending[0]
	x.pending[0] = nil
	x.pending = x.pending[1:]
	return h
}

func (x *interruptController) hasPending() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.pending) != 0
}

// IntrLevel returns the current interrupt level.
func (s *Scheduler) IntrLevel() IntrLevel {
	return s.intr.level
}

// Disable disables interrupts and returns the previous level.
func (s *Scheduler) Disable() IntrLevel {
	old := s.intr.level
	s.intr.level = IntrOff
	return old
}

// Enable enables interrupts, delivering any that are pending, and returns
// the previous level. It must not be called from an interrupt handler.
func (s *Scheduler) Enable() IntrLevel {
	if s.intr.inContext {
		s.fatal(`enable`, "interrupts enabled inside an interrupt handler")
	}
	old := s.intr.level
	s.intr.level = IntrOn
	s.deliver()
	return old
}

// SetLevel enables or disables interrupts according to level, returning the
// previous level.
func (s *Scheduler) SetLevel(level IntrLevel) IntrLevel {
	if level == IntrOn {
		return s.Enable()
	}
	return s.Disable()
}

// InContext reports whether an interrupt handler is running.
func (s *Scheduler) InContext() bool {
	return s.intr.inContext
}

// YieldOnReturn requests that the interrupted thread yield once the current
// interrupt handler returns. It may only be called from a handler.
func (s *Scheduler) YieldOnReturn() {
	if !s.intr.inContext {
		s.fatal(`yield on return`, "not in interrupt context")
	}
	s.intr.yieldOnReturn = true
}

// Raise posts an interrupt handler. It is safe to call from any goroutine.
// The handler runs on whichever thread holds the processor, the next time
// interrupts are enabled there, with interrupts disabled and [Scheduler.InContext]
// reporting true.
func (s *Scheduler) Raise(handler func()) {
	if handler == nil {
		panic("kthread: nil interrupt handler")
	}
	s.intr.mu.Lock()
	s.intr.pending = append(s.intr.pending, handler)
	s.intr.mu.Unlock()
	select {
	case s.intr.signal <- struct{}{}:
	default:
	}
}

// Checkpoint delivers pending interrupts if interrupts are enabled. Threads
// that run for long stretches without blocking call it to remain preemptible.
func (s *Scheduler) Checkpoint() {
	if s.intr.level == IntrOn && !s.intr.inContext {
		s.deliver()
	}
}

// deliver runs pending handlers, then honors any yield-on-return request.
// Requires interrupts on, outside interrupt context.
func (s *Scheduler) deliver() {
	for {
		h := s.intr.next()
		if h == nil {
			break
		}
		s.intr.level = IntrOff
		s.intr.inContext = true
		h()
		s.intr.inContext = false
		s.intr.level = IntrOn
	}
	if s.intr.yieldOnReturn {
		s.intr.yieldOnReturn = false
		s.stats.Preemptions++
		s.Yield()
	}
}

// halt idles the processor until an interrupt is pending or a thread is
// ready, then delivers interrupts.
func (s *Scheduler) halt() {
	for s.ready.len() == 0 && !s.intr.hasPending() {
		if s.halter != nil {
			s.halter()
			continue
		}
		<-s.intr.signal
	}
	s.Checkpoint()
}
