// Package palloc implements a fixed-capacity page pool, used as the storage
// backing kernel thread records.
//
// Pages are opaque handles. The zero value, [NoPage], is never handed out by
// a [Pool], and denotes storage that did not come from the allocator (e.g.
// the bootstrap thread, whose record predates the pool).
package palloc
