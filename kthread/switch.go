package kthread

import (
	"runtime"
)

// switchThreads hands the processor from cur to next. It returns once cur is
// dispatched again. A dying cur never gets the processor back, so its
// goroutine exits instead.
func (s *Scheduler) switchThreads(cur, next *Thread) {
	dying := cur.status == StatusDying
	next.resume <- struct{}{}
	if dying {
		runtime.Goexit()
	}
	<-cur.resume
}
