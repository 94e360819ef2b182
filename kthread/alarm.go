package kthread

import (
	"math"
)

// Sleep blocks the running thread until [Scheduler.TickWake] is called with
// a tick of at least until. The idle thread cannot sleep.
func (s *Scheduler) Sleep(until int64) {
	if s.intr.inContext {
		s.fatal(`sleep`, "called from interrupt context")
	}
	cur := s.Current()
	if cur == s.idle {
		s.fatal(`sleep`, "the idle thread cannot sleep")
	}
	old := s.Disable()
	cur.wakeTick = until
	s.sleepers.pushBack(cur)
	if until < s.earliestWake {
		s.earliestWake = until
	}
	s.trace(TraceSleep, cur, nil)
	s.logger.Debug().
		Stringer(`thread`, cur).
		Int64(`until`, until).
		Log(`thread sleeping`)
	s.doSchedule(StatusBlocked)
	s.SetLevel(old)
}

// TickWake readies every sleeping thread whose wake tick is at most now, in
// the order they went to sleep, and recomputes [Scheduler.EarliestWake] from
// the remainder. If a woken thread outranks the running thread, the running
// thread is preempted (on interrupt return, if called from a handler).
func (s *Scheduler) TickWake(now int64) {
	old := s.Disable()
	s.earliestWake = math.MaxInt64
	var woken int
	for i := 0; i < s.sleepers.len(); {
		t := s.sleepers.threads[i]
		if t.wakeTick <= now {
			s.sleepers.removeAt(i)
			s.trace(TraceWake, t, nil)
			s.Unblock(t)
			woken++
			continue
		}
		if t.wakeTick < s.earliestWake {
			s.earliestWake = t.wakeTick
		}
		i++
	}
	if woken != 0 {
		s.logger.Debug().
			Int64(`tick`, now).
			Int(`woken`, woken).
			Int64(`earliest_wake`, s.earliestWake).
			Log(`woke sleeping threads`)
	}
	s.SetLevel(old)
	if woken != 0 {
		s.CheckPreempt()
	}
}

// EarliestWake returns the smallest wake tick of any sleeping thread, or
// math.MaxInt64 if none are sleeping. A timer may skip [Scheduler.TickWake]
// while the current tick is below it.
func (s *Scheduler) EarliestWake() int64 {
	return s.earliestWake
}
