package kthread

// TraceKind identifies a scheduling event.
type TraceKind uint8

const (
	// TraceCreate is emitted when a thread is created.
	TraceCreate TraceKind = iota + 1
	// TraceReady is emitted when a thread enters the ready queue.
	TraceReady
	// TraceDispatch is emitted when a thread is given the processor.
	// Other is the thread that gave it up.
	TraceDispatch
	// TraceSleep is emitted when a thread starts sleeping until Tick.
	TraceSleep
	// TraceWake is emitted when a sleeping thread is woken.
	TraceWake
	// TraceDonate is emitted when a donation raises a holder's priority.
	// Other is the donor.
	TraceDonate
	// TracePriority is emitted when a thread's effective priority is
	// recomputed.
	TracePriority
	// TraceExit is emitted when a thread exits.
	TraceExit
	// TraceReclaim is emitted when a dead thread's storage is released.
	TraceReclaim
)

func (k TraceKind) String() string {
	switch k {
	case TraceCreate:
		return "create"
	case TraceReady:
		return "ready"
	case TraceDispatch:
		return "dispatch"
	case TraceSleep:
		return "sleep"
	case TraceWake:
		return "wake"
	case TraceDonate:
		return "donate"
	case TracePriority:
		return "priority"
	case TraceExit:
		return "exit"
	case TraceReclaim:
		return "reclaim"
	default:
		return "unknown"
	}
}

// TraceEvent describes a scheduling event.
type TraceEvent struct {
	Name     string
	Tick     int64
	TID      TID
	Other    TID
	Priority int
	Kind     TraceKind
}

// Tracer receives scheduling events. Trace is called synchronously, in
// kernel context with interrupts disabled, and must not call back into the
// scheduler.
type Tracer interface {
	Trace(ev TraceEvent)
}

func (s *Scheduler) trace(kind TraceKind, t *Thread, other *Thread) {
	if s.tracer == nil {
		return
	}
	ev := TraceEvent{
		Kind:     kind,
		Tick:     s.ticks,
		TID:      t.tid,
		Name:     t.name,
		Priority: t.priority,
	}
	if other != nil {
		ev.Other = other.tid
	}
	if kind == TraceSleep {
		ev.Tick = t.wakeTick
	}
	s.tracer.Trace(ev)
}
