package kthread

import (
	"golang.org/x/exp/slices"
)

// OnContention is called by the running thread when it finds lock held,
// before blocking on it. The thread records the lock as its block target,
// joins the holder's donor set, and donates its priority along the chain of
// holders, at most the configured donation depth deep. Donation only raises
// priorities.
func (s *Scheduler) OnContention(lock Lock) {
	cur := s.Current()
	old := s.Disable()
	defer s.SetLevel(old)
	holder := lock.Holder()
	if holder == nil || holder == cur {
		return
	}
	cur.waitOnLock = lock
	if cur.donee != nil {
		s.removeDonor(cur.donee, cur)
	}
	s.addDonor(holder, cur)
	s.donate(cur)
}

// OnAcquire is called by the running thread once it has acquired lock.
// waiters are the threads still blocked on lock; they become donors of the
// new holder.
func (s *Scheduler) OnAcquire(lock Lock, waiters []*Thread) {
	cur := s.Current()
	old := s.Disable()
	defer s.SetLevel(old)
	cur.waitOnLock = nil
	var adopted bool
	for _, w := range waiters {
		if w == cur || !w.IsValid() || w.waitOnLock != lock {
			continue
		}
		if w.donee != nil {
			s.removeDonor(w.donee, w)
		}
		s.addDonor(cur, w)
		adopted = true
	}
	if adopted {
		s.refreshPriority(cur)
	}
}

// OnRelease is called by the running thread after releasing lock. Donors
// waiting on lock are dropped, the effective priority is recomputed, and the
// thread yields if a ready thread now outranks it.
func (s *Scheduler) OnRelease(lock Lock) {
	cur := s.Current()
	old := s.Disable()
	kept := cur.donors[:0]
	for _, d := range cur.donors {
		if d.waitOnLock == lock {
			d.donee = nil
			continue
		}
		kept = append(kept, d)
	}
	clear(cur.donors[len(kept):])
	cur.donors = kept
	s.refreshPriority(cur)
	s.SetLevel(old)
	s.CheckPreempt()
}

// SetPriority sets the running thread's base priority. Its effective
// priority is recomputed, so it stays at least as high as any donation, and
// it yields if a ready thread now outranks it.
func (s *Scheduler) SetPriority(priority int) {
	s.checkPriority(`set priority`, priority)
	cur := s.Current()
	old := s.Disable()
	cur.basePriority = priority
	s.refreshPriority(cur)
	s.SetLevel(old)
	s.CheckPreempt()
}

// CheckPreempt yields the processor if the head of the ready queue strictly
// outranks the running thread. From an interrupt handler, it requests a
// yield on return instead.
func (s *Scheduler) CheckPreempt() {
	head := s.ready.front()
	if head == nil || head.priority <= s.Current().priority {
		return
	}
	if s.intr.inContext {
		s.intr.yieldOnReturn = true
		return
	}
	s.stats.Preemptions++
	s.Yield()
}

func (s *Scheduler) addDonor(holder, donor *Thread) {
	if donor.donee != nil {
		s.fatal(`donate`, "%v already donates to %v", donor, donor.donee)
	}
	donor.donee = holder
	i := slices.IndexFunc(holder.donors, func(o *Thread) bool {
		return o.priority < donor.priority
	})
	if i < 0 {
		holder.donors = append(holder.donors, donor)
	} else {
		holder.donors = slices.Insert(holder.donors, i, donor)
	}
}

func (s *Scheduler) removeDonor(holder, donor *Thread) {
	if i := slices.Index(holder.donors, donor); i >= 0 {
		holder.donors = slices.Delete(holder.donors, i, i+1)
	}
	donor.donee = nil
}

// donate walks the chain of lock holders starting from the lock donor is
// blocked on, raising each holder to at least donor's priority.
func (s *Scheduler) donate(donor *Thread) {
	priority := donor.priority
	lock := donor.waitOnLock
	var depth int
	for ; depth < s.donationDepth && lock != nil; depth++ {
		holder := lock.Holder()
		if holder == nil {
			return
		}
		if holder.priority < priority {
			holder.priority = priority
			s.ready.reposition(holder)
			s.stats.Donations++
			s.trace(TraceDonate, holder, donor)
		}
		lock = holder.waitOnLock
	}
	if lock == nil || lock.Holder() == nil {
		return
	}
	s.stats.DonationsTruncated++
	if _, ok := s.warnLimiter.Allow(donor.tid); !ok {
		return
	}
	s.logger.Warning().
		Stringer(`donor`, donor).
		Stringer(`next_holder`, lock.Holder()).
		Int(`depth`, depth).
		Log(`priority donation chain truncated`)
}

// refreshPriority recomputes t's effective priority from its base priority
// and its remaining donors.
func (s *Scheduler) refreshPriority(t *Thread) {
	prev := t.priority
	t.priority = t.basePriority
	if len(t.donors) != 0 {
		slices.SortStableFunc(t.donors, func(a, b *Thread) int {
			return b.priority - a.priority
		})
		if p := t.donors[0].priority; p > t.priority {
			t.priority = p
		}
	}
	if t.priority != prev {
		s.ready.reposition(t)
		s.trace(TracePriority, t, nil)
	}
}
