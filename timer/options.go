package timer

import (
	"errors"
	"fmt"

	"github.com/joeycumines/logiface"
)

// ErrInvalidOption is wrapped by the errors [New] returns for bad options.
var ErrInvalidOption = errors.New("timer: invalid option")

type timerOptions struct {
	logger    *logiface.Logger[logiface.Event]
	hook      func(ticks int64)
	frequency int
}

// Option configures a Timer.
type Option interface {
	applyTimer(*timerOptions) error
}

type optionImpl struct {
	applyTimerFunc func(*timerOptions) error
}

func (o *optionImpl) applyTimer(opts *timerOptions) error {
	return o.applyTimerFunc(opts)
}

// WithLogger sets the structured logger.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *timerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithTickHook registers a function called, in interrupt context, at the
// end of every timer interrupt, with the updated tick count.
func WithTickHook(fn func(ticks int64)) Option {
	return &optionImpl{func(opts *timerOptions) error {
		opts.hook = fn
		return nil
	}}
}

// WithFrequency sets the number of ticks per second, between 19 and 1000
// inclusive. Defaults to [Frequency].
func WithFrequency(hz int) Option {
	return &optionImpl{func(opts *timerOptions) error {
		if hz < 19 || hz > 1000 {
			return fmt.Errorf("%w: frequency %d", ErrInvalidOption, hz)
		}
		opts.frequency = hz
		return nil
	}}
}

func resolveOptions(opts []Option) (*timerOptions, error) {
	cfg := &timerOptions{frequency: Frequency}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyTimer(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
