package kthread

// idleMain is the body of the idle thread. It runs only when no other thread
// is ready. On its first dispatch it wakes the thread that called Start.
func (s *Scheduler) idleMain(arg any) {
	starter := arg.(*Thread)
	s.idle = s.Current()
	s.Unblock(starter)

	for {
		s.Disable()
		s.Block()
		s.Enable()
		s.halt()
	}
}
