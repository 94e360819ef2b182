package kthread

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOption is wrapped by the errors [New] returns for bad options.
	ErrInvalidOption = errors.New("kthread: invalid option")

	// ErrNoRunnable indicates the scheduler had nothing to dispatch, which
	// happens if every thread blocks before [Scheduler.Start].
	ErrNoRunnable = errors.New("kthread: no runnable thread")
)

// InvariantError describes a broken scheduler invariant. It is only ever
// panicked with: a scheduler that reports one is unusable.
type InvariantError struct {
	// Op names the operation that detected the breach.
	Op string
	// Err describes the breach.
	Err error
}

func (e *InvariantError) Error() string {
	return "kthread: invariant violated: " + e.Op + ": " + e.Err.Error()
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

// fatal logs at critical level then panics with an *InvariantError.
func (s *Scheduler) fatal(op, format string, args ...any) {
	err := &InvariantError{Op: op, Err: fmt.Errorf(format, args...)}
	s.logger.Crit().
		Str("op", op).
		Err(err.Err).
		Log("scheduler invariant violated")
	panic(err)
}
