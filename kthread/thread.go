package kthread

import (
	"strconv"

	"github.com/joeycumines/go-kthread/palloc"
)

// TID identifies a thread. Identifiers are assigned from 1 and never reused.
type TID int

// TIDError is returned by [Scheduler.Create] when no thread was created.
const TIDError TID = -1

// threadMagic marks a live thread record. Reclamation clears it, and
// [Thread.IsValid] checks it, to catch use of stale handles.
const threadMagic = 0xcd6abf4b

// maxNameLen is the number of bytes of a thread name that are retained.
const maxNameLen = 16

// Func is the entry point of a kernel thread.
type Func func(arg any)

// Lock is a mutual-exclusion primitive with a single holder, as seen by the
// priority donation engine.
type Lock interface {
	// Holder returns the thread currently holding the lock, or nil.
	Holder() *Thread
}

// Thread is a kernel thread record. Accessors may only be called from kernel
// context, i.e. by the thread holding the processor or by an interrupt
// handler.
type Thread struct {
	sched        *Scheduler
	resume       chan struct{}
	entry        Func
	arg          any
	waitOnLock   Lock
	donee        *Thread
	addressSpace any
	donors       []*Thread
	name         string
	wakeTick     int64
	readyAt      int64
	tid          TID
	priority     int
	basePriority int
	page         palloc.Page
	magic        uint32
	status       Status
	queue        queueKind
}

// IsValid reports whether t refers to a live thread record.
func (t *Thread) IsValid() bool {
	return t != nil && t.magic == threadMagic
}

// TID returns the thread's identifier.
func (t *Thread) TID() TID { return t.tid }

// Name returns the thread's name, truncated to 16 bytes.
func (t *Thread) Name() string { return t.name }

// Status returns the thread's scheduling state.
func (t *Thread) Status() Status { return t.status }

// Priority returns the effective priority, including donations.
func (t *Thread) Priority() int { return t.priority }

// BasePriority returns the priority the thread was created with, or last
// set via [Scheduler.SetPriority].
func (t *Thread) BasePriority() int { return t.basePriority }

// WaitingOn returns the lock the thread is blocked acquiring, if any.
func (t *Thread) WaitingOn() Lock { return t.waitOnLock }

// WakeTick returns the tick the thread last asked to sleep until.
func (t *Thread) WakeTick() int64 { return t.wakeTick }

// Donors returns a copy of the threads currently donating priority to t.
func (t *Thread) Donors() []*Thread {
	if len(t.donors) == 0 {
		return nil
	}
	return append([]*Thread(nil), t.donors...)
}

// Donee returns the thread t is donating priority to, if any.
func (t *Thread) Donee() *Thread { return t.donee }

// AddressSpace returns the user address space handle, nil for pure kernel
// threads.
func (t *Thread) AddressSpace() any { return t.addressSpace }

// SetAddressSpace attaches a user address space handle. Ticks spent running
// threads with an address space are counted as user ticks.
func (t *Thread) SetAddressSpace(as any) { t.addressSpace = as }

// String formats the thread as name#tid.
func (t *Thread) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.name + "#" + strconv.Itoa(int(t.tid))
}

// launch is the body of every created thread's goroutine.
func (t *Thread) launch() {
	<-t.resume
	s := t.sched
	s.Enable()
	t.entry(t.arg)
	s.Exit()
}

func truncateName(name string) string {
	if len(name) > maxNameLen {
		return name[:maxNameLen]
	}
	return name
}
