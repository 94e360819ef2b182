package kthread

import (
	"golang.org/x/exp/slices"
)

// threadQueue is an ordered container of threads. A thread is a member of at
// most one queue at a time, tracked by its queue tag.
type threadQueue struct {
	s       *Scheduler
	threads []*Thread
	kind    queueKind
}

func (q *threadQueue) len() int {
	return len(q.threads)
}

func (q *threadQueue) front() *Thread {
	if len(q.threads) == 0 {
		return nil
	}
	return q.threads[0]
}

func (q *threadQueue) claim(t *Thread) {
	if t.queue != queueNone {
		q.s.fatal(`queue insert`, "%v is already in the %v queue, cannot join the %v queue", t, t.queue, q.kind)
	}
	t.queue = q.kind
}

func (q *threadQueue) pushBack(t *Thread) {
	q.claim(t)
	q.threads = append(q.threads, t)
}

// insertOrdered inserts t before the first thread of strictly lower priority,
// keeping the queue sorted in non-increasing priority order, with equal
// priorities in arrival order.
func (q *threadQueue) insertOrdered(t *Thread) {
	q.claim(t)
	i := slices.IndexFunc(q.threads, func(o *Thread) bool {
		return o.priority < t.priority
	})
	if i < 0 {
		q.threads = append(q.threads, t)
		return
	}
	q.threads = slices.Insert(q.threads, i, t)
}

func (q *threadQueue) popFront() *Thread {
	if len(q.threads) == 0 {
		return nil
	}
	return q.removeAt(0)
}

func (q *threadQueue) removeAt(i int) *Thread {
	t := q.threads[i]
	q.threads = slices.Delete(q.threads, i, i+1)
	t.queue = queueNone
	return t
}

func (q *threadQueue) remove(t *Thread) bool {
	if t.queue != q.kind {
		return false
	}
	i := slices.Index(q.threads, t)
	if i < 0 {
		return false
	}
	q.removeAt(i)
	return true
}

// reposition restores the ordering of the queue after t's priority changed.
func (q *threadQueue) reposition(t *Thread) {
	if q.remove(t) {
		q.insertOrdered(t)
	}
}

func (q *threadQueue) snapshot() []*Thread {
	return slices.Clone(q.threads)
}
