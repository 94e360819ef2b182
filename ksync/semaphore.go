package ksync

import (
	"github.com/joeycumines/go-kthread/kthread"
	"golang.org/x/exp/slices"
)

// Semaphore is a counting semaphore. Waiters are woken in priority order,
// as of the time of the wake, ties broken by arrival.
type Semaphore struct {
	s       *kthread.Scheduler
	waiters []*kthread.Thread
	value   uint
}

// NewSemaphore returns a semaphore with the given initial value.
func NewSemaphore(s *kthread.Scheduler, value uint) *Semaphore {
	return &Semaphore{s: s, value: value}
}

// Value returns the current value.
func (x *Semaphore) Value() uint {
	return x.value
}

// Waiters returns the threads blocked in Down, in arrival order.
func (x *Semaphore) Waiters() []*kthread.Thread {
	return slices.Clone(x.waiters)
}

// Down waits for the value to become positive, then decrements it.
func (x *Semaphore) Down() {
	old := x.s.Disable()
	for x.value == 0 {
		x.wait()
	}
	x.value--
	x.s.SetLevel(old)
}

// TryDown decrements the value if it is positive, without blocking,
// reporting whether it did.
func (x *Semaphore) TryDown() bool {
	old := x.s.Disable()
	defer x.s.SetLevel(old)
	if x.value == 0 {
		return false
	}
	x.value--
	return true
}

// Up increments the value and wakes the highest priority waiter, yielding
// to it if it outranks the caller. It may be called from an interrupt
// handler.
func (x *Semaphore) Up() {
	x.up()
	x.s.CheckPreempt()
}

// wait blocks the running thread on the semaphore. Interrupts must be off.
func (x *Semaphore) wait() {
	x.waiters = append(x.waiters, x.s.Current())
	x.s.Block()
}

// up is Up without the preemption check.
func (x *Semaphore) up() {
	old := x.s.Disable()
	if len(x.waiters) != 0 {
		// priorities may have changed through donation since waiting began
		slices.SortStableFunc(x.waiters, func(a, b *kthread.Thread) int {
			return b.Priority() - a.Priority()
		})
		next := x.waiters[0]
		x.waiters = slices.Delete(x.waiters, 0, 1)
		x.s.Unblock(next)
	}
	x.value++
	x.s.SetLevel(old)
}
