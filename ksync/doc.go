// Package ksync provides the blocking synchronization primitives of the
// kernel: a counting [Semaphore], and a [Lock] that participates in
// priority donation.
//
// Both wake their highest priority waiter first, and must only be used by
// threads of the [kthread.Scheduler] they were created with.
package ksync
