package kthread

// The multi-level feedback queue scheduler is not implemented. These
// accessors exist so callers written against it still build, and report
// zero.

// SetNice sets the running thread's nice value. Not implemented.
func (s *Scheduler) SetNice(nice int) {}

// Nice returns the running thread's nice value. Not implemented.
func (s *Scheduler) Nice() int { return 0 }

// LoadAvg returns 100 times the system load average. Not implemented.
func (s *Scheduler) LoadAvg() int { return 0 }

// RecentCPU returns 100 times the running thread's recent CPU time. Not
// implemented.
func (s *Scheduler) RecentCPU() int { return 0 }
