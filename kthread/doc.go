// Package kthread implements a preemptive, priority-based kernel thread
// scheduler for a single logical processor.
//
// Every kernel thread is backed by a goroutine, but only one of them holds the
// processor at any instant. Control is handed from thread to thread through
// per-thread resume channels, so scheduler state needs no locks: disabling
// interrupts (see [Scheduler.Disable]) is the only mutual exclusion. External
// events, such as timer ticks, are posted from arbitrary goroutines with
// [Scheduler.Raise] and delivered on the running thread at safe points.
//
// A [Scheduler] is created by [New], which turns the calling goroutine into
// the bootstrap thread. [Scheduler.Start] then creates the idle thread and
// enables interrupts. Threads are created with [Scheduler.Create], and block,
// yield, sleep and exit through the corresponding methods. Locks that want
// priority donation call [Scheduler.OnContention], [Scheduler.OnAcquire] and
// [Scheduler.OnRelease]; see package ksync for an implementation.
//
// Unless noted otherwise, methods must only be called from the thread that
// currently holds the processor.
package kthread
