package kthread

// Tick accounts one timer tick to the running thread. It must be called from
// an interrupt handler. Once the running thread has used up its time slice,
// it is made to yield when the handler returns.
func (s *Scheduler) Tick() {
	if !s.intr.inContext {
		s.fatal(`tick`, "not in interrupt context")
	}
	t := s.current
	s.ticks++
	switch {
	case t == s.idle:
		s.stats.IdleTicks++
	case t.addressSpace != nil:
		s.stats.UserTicks++
	default:
		s.stats.KernelTicks++
	}
	s.sliceTicks++
	if s.sliceTicks >= s.timeSlice {
		s.stats.SliceExpiries++
		s.intr.yieldOnReturn = true
	}
}
