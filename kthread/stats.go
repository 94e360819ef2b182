package kthread

import (
	"github.com/dustin/go-humanize"
)

// Stats counts scheduler activity.
type Stats struct {
	// IdleTicks, KernelTicks and UserTicks partition the timer ticks by the
	// kind of thread that was running.
	IdleTicks   int64
	KernelTicks int64
	UserTicks   int64
	// ContextSwitches counts dispatches of a thread other than the outgoing one.
	ContextSwitches uint64
	Created         uint64
	CreateFailures  uint64
	Reclaimed       uint64
	// SliceExpiries counts yields requested because a time slice ran out.
	SliceExpiries uint64
	// Preemptions counts yields forced by a higher priority ready thread, or
	// an expired time slice.
	Preemptions        uint64
	Donations          uint64
	DonationsTruncated uint64
	PeakReady          int
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	return s.stats
}

// LogStats logs the tick counters, and the other scheduler counters, at
// info level.
func (s *Scheduler) LogStats() {
	st := s.stats
	s.logger.Info().
		Int64(`idle_ticks`, st.IdleTicks).
		Int64(`kernel_ticks`, st.KernelTicks).
		Int64(`user_ticks`, st.UserTicks).
		Uint64(`context_switches`, st.ContextSwitches).
		Uint64(`created`, st.Created).
		Uint64(`reclaimed`, st.Reclaimed).
		Uint64(`preemptions`, st.Preemptions).
		Uint64(`donations`, st.Donations).
		Uint64(`donations_truncated`, st.DonationsTruncated).
		Int(`peak_ready`, st.PeakReady).
		Log(`thread statistics`)
}

// Summary renders the tick counters the way the kernel prints them at
// shutdown.
func (st Stats) Summary() string {
	return "Thread: " + humanize.Comma(st.IdleTicks) + " idle ticks, " +
		humanize.Comma(st.KernelTicks) + " kernel ticks, " +
		humanize.Comma(st.UserTicks) + " user ticks"
}
