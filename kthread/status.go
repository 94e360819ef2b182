package kthread

// Status is the lifecycle state of a [Thread].
type Status uint8

const (
	// StatusRunning is the state of the one thread holding the processor.
	StatusRunning Status = iota
	// StatusReady threads are members of the ready queue.
	StatusReady
	// StatusBlocked threads wait for an event, such as an Unblock or a wake tick.
	StatusBlocked
	// StatusDying threads have exited, and are awaiting reclamation.
	StatusDying
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusReady:
		return "ready"
	case StatusBlocked:
		return "blocked"
	case StatusDying:
		return "dying"
	default:
		return "unknown"
	}
}

// queueKind tags which scheduler container a thread currently belongs to.
type queueKind uint8

const (
	queueNone queueKind = iota
	queueReady
	queueSleep
	queueDestruction
)

func (k queueKind) String() string {
	switch k {
	case queueNone:
		return "none"
	case queueReady:
		return "ready"
	case queueSleep:
		return "sleep"
	case queueDestruction:
		return "destruction"
	default:
		return "unknown"
	}
}
