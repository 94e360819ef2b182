package kthread

import (
	"errors"
	"fmt"
	"math"
)

// CheckInvariants verifies the scheduler's structural invariants, returning
// every violation found, joined. It must be called from kernel context.
func (s *Scheduler) CheckInvariants() error {
	var errs []error

	var running []*Thread
	for _, t := range s.threads {
		if t.status == StatusRunning {
			running = append(running, t)
		}
		if !t.IsValid() {
			errs = append(errs, fmt.Errorf("%v: invalid record in thread table", t))
		}
		if t.status == StatusDying && (t.queue == queueReady || t.queue == queueSleep) {
			errs = append(errs, fmt.Errorf("%v: dying thread in the %v queue", t, t.queue))
		}
		if t.status == StatusReady && t.queue != queueReady {
			errs = append(errs, fmt.Errorf("%v: ready thread in the %v queue", t, t.queue))
		}
		if t.priority < t.basePriority {
			errs = append(errs, fmt.Errorf("%v: priority %d below base %d", t, t.priority, t.basePriority))
		}
		if t.donee != nil && t.waitOnLock == nil {
			errs = append(errs, fmt.Errorf("%v: donating to %v without waiting on a lock", t, t.donee))
		}
		if cycle := s.waitCycle(t); cycle {
			errs = append(errs, fmt.Errorf("%v: lock wait-for cycle", t))
		}
	}
	if len(running) != 1 {
		errs = append(errs, fmt.Errorf("%d running threads, want 1", len(running)))
	} else if running[0] != s.current {
		errs = append(errs, fmt.Errorf("%v is running, but %v is current", running[0], s.current))
	}

	for i, t := range s.ready.threads {
		if t.queue != queueReady || t.status != StatusReady {
			errs = append(errs, fmt.Errorf("%v: %v thread tagged %v in the ready queue", t, t.status, t.queue))
		}
		if t == s.idle {
			errs = append(errs, errors.New("idle thread in the ready queue"))
		}
		if i != 0 && s.ready.threads[i-1].priority < t.priority {
			errs = append(errs, fmt.Errorf("ready queue unsorted at %d: %v (%d) before %v (%d)",
				i, s.ready.threads[i-1], s.ready.threads[i-1].priority, t, t.priority))
		}
	}

	earliest := int64(math.MaxInt64)
	for _, t := range s.sleepers.threads {
		if t.queue != queueSleep || t.status != StatusBlocked {
			errs = append(errs, fmt.Errorf("%v: %v thread tagged %v in the sleep queue", t, t.status, t.queue))
		}
		earliest = min(earliest, t.wakeTick)
	}
	if s.earliestWake > earliest {
		errs = append(errs, fmt.Errorf("earliest wake %d after sleeper wake %d", s.earliestWake, earliest))
	}

	for _, t := range s.destruction.threads {
		if t.status != StatusDying {
			errs = append(errs, fmt.Errorf("%v: %v thread in the destruction queue", t, t.status))
		}
	}

	return errors.Join(errs...)
}

// waitCycle reports whether following t's lock holders leads back to t.
func (s *Scheduler) waitCycle(t *Thread) bool {
	lock := t.waitOnLock
	for range len(s.threads) {
		if lock == nil {
			return false
		}
		holder := lock.Holder()
		if holder == nil {
			return false
		}
		if holder == t {
			return true
		}
		lock = holder.waitOnLock
	}
	return false
}
