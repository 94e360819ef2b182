// Package ktrace records scheduling events, for inspection in tests, or as
// JSON lines for offline analysis.
package ktrace

import (
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/joeycumines/go-kthread/kthread"
)

// Recorder is a [kthread.Tracer]. It is safe to read from other goroutines
// while the scheduler is running.
type Recorder struct {
	mu     sync.Mutex
	w      io.Writer
	err    error
	kinds  map[kthread.TraceKind]bool
	runID  string
	buf    []byte
	events []kthread.TraceEvent
	retain bool
	count  int
}

var _ kthread.Tracer = (*Recorder)(nil)

// New returns a Recorder. Without options, it retains events in memory and
// writes nothing.
func New(opts ...Option) *Recorder {
	cfg, retain := resolveOptions(opts)
	runID := cfg.runID
	if runID == `` {
		runID = uuid.NewString()
	}
	return &Recorder{
		w:      cfg.writer,
		kinds:  cfg.kinds,
		runID:  runID,
		retain: retain,
	}
}

// RunID identifies the recorded run, included in every written line.
func (x *Recorder) RunID() string {
	return x.runID
}

// Trace implements [kthread.Tracer].
func (x *Recorder) Trace(ev kthread.TraceEvent) {
	if x.kinds != nil && !x.kinds[ev.Kind] {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.count++
	if x.retain {
		x.events = append(x.events, ev)
	}
	if x.w == nil || x.err != nil {
		return
	}
	x.buf = AppendEvent(x.buf[:0], x.runID, ev)
	_, x.err = x.w.Write(x.buf)
}

// Events returns a copy of the retained events.
func (x *Recorder) Events() []kthread.TraceEvent {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]kthread.TraceEvent(nil), x.events...)
}

// Count returns the number of events recorded, retained or not.
func (x *Recorder) Count() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.count
}

// Err returns the first write error. Events after it are not written.
func (x *Recorder) Err() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.err
}
