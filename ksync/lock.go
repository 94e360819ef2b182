package ksync

import (
	"github.com/joeycumines/go-kthread/kthread"
)

// Lock is a non-recursive mutual exclusion lock. Threads waiting for a lock
// donate their priority to its holder, see [kthread.Scheduler.OnContention].
type Lock struct {
	s      *kthread.Scheduler
	sema   *Semaphore
	holder *kthread.Thread
	name   string
}

var _ kthread.Lock = (*Lock)(nil)

// NewLock returns an unheld lock.
func NewLock(s *kthread.Scheduler, name string) *Lock {
	return &Lock{
		s:    s,
		sema: NewSemaphore(s, 1),
		name: name,
	}
}

// Name returns the name the lock was created with.
func (x *Lock) Name() string {
	return x.name
}

// Holder returns the thread holding the lock, or nil.
func (x *Lock) Holder() *kthread.Thread {
	return x.holder
}

// HeldByCurrent reports whether the running thread holds the lock.
func (x *Lock) HeldByCurrent() bool {
	return x.holder != nil && x.holder == x.s.Current()
}

// Waiters returns the threads blocked acquiring the lock.
func (x *Lock) Waiters() []*kthread.Thread {
	return x.sema.Waiters()
}

// Acquire waits until the lock is free, then takes it. While waiting, the
// caller donates its priority to the holder. The caller must not already
// hold the lock, and must not be an interrupt handler.
func (x *Lock) Acquire() {
	if x.s.InContext() {
		panic("ksync: acquire " + x.name + " in interrupt context")
	}
	if x.HeldByCurrent() {
		panic("ksync: recursive acquire of " + x.name)
	}
	old := x.s.Disable()
	for !x.sema.TryDown() {
		x.s.OnContention(x)
		x.sema.wait()
	}
	x.take()
	x.s.SetLevel(old)
}

// TryAcquire takes the lock if it is free, reporting whether it did.
func (x *Lock) TryAcquire() bool {
	if x.HeldByCurrent() {
		panic("ksync: recursive acquire of " + x.name)
	}
	old := x.s.Disable()
	defer x.s.SetLevel(old)
	if !x.sema.TryDown() {
		return false
	}
	x.take()
	return true
}

func (x *Lock) take() {
	x.holder = x.s.Current()
	x.s.OnAcquire(x, x.sema.waiters)
}

// Release releases the lock, which must be held by the running thread. Any
// priority donated through the lock is returned, which may cause the caller
// to yield.
func (x *Lock) Release() {
	if !x.HeldByCurrent() {
		panic("ksync: release of " + x.name + " by a thread that does not hold it")
	}
	old := x.s.Disable()
	x.holder = nil
	x.sema.up()
	x.s.OnRelease(x)
	x.s.SetLevel(old)
}
