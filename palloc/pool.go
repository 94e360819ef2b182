package palloc

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the number of pages in a pool created by [New] with a
// non-positive capacity.
const DefaultCapacity = 1024

// ErrExhausted is returned by [Pool.GetPage] when every page is in use.
var ErrExhausted = errors.New("palloc: pool exhausted")

// NoPage is the zero Page, never allocated.
const NoPage Page = 0

type (
	// Page identifies a single page of a Pool.
	Page uint32

	// Pool is a fixed-capacity page allocator. It is safe for concurrent use.
	// Instances must be initialized using the New factory.
	Pool struct {
		mu       sync.Mutex
		free     []Page
		used     []bool
		allocs   uint64
		frees    uint64
		peak     int
		capacity int
	}

	// Stats is a point-in-time snapshot of a Pool.
	Stats struct {
		Capacity int
		InUse    int
		Peak     int
		Allocs   uint64
		Frees    uint64
	}
)

// New initializes a Pool of the given number of pages. A capacity <= 0 uses
// DefaultCapacity.
func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	x := &Pool{
		free:     make([]Page, capacity),
		used:     make([]bool, capacity+1),
		capacity: capacity,
	}
	// lowest pages are handed out first
	for i := range x.free {
		x.free[i] = Page(capacity - i)
	}
	return x
}

// GetPage allocates a page, returning ErrExhausted if none remain.
func (x *Pool) GetPage() (Page, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	n := len(x.free)
	if n == 0 {
		return NoPage, ErrExhausted
	}
	page := x.free[n-1]
	x.free = x.free[:n-1]
	x.used[page] = true
	x.allocs++
	if inUse := x.capacity - len(x.free); inUse > x.peak {
		x.peak = inUse
	}
	return page, nil
}

// FreePage returns a page to the pool. Freeing NoPage is a no-op. Freeing a
// page that is not currently allocated (including a double free) panics, as
// it indicates corrupted allocator state.
func (x *Pool) FreePage(page Page) {
	if page == NoPage {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if int(page) > x.capacity || !x.used[page] {
		panic(fmt.Errorf(`palloc: free of unallocated page %d`, page))
	}
	x.used[page] = false
	x.free = append(x.free, page)
	x.frees++
}

// InUse reports whether the page is currently allocated.
func (x *Pool) InUse(page Page) bool {
	if page == NoPage {
		return false
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	return int(page) <= x.capacity && x.used[page]
}

// Stats returns a snapshot of the pool's counters.
func (x *Pool) Stats() Stats {
	x.mu.Lock()
	defer x.mu.Unlock()
	return Stats{
		Capacity: x.capacity,
		InUse:    x.capacity - len(x.free),
		Peak:     x.peak,
		Allocs:   x.allocs,
		Frees:    x.frees,
	}
}
