package ktrace

import (
	"io"

	"github.com/joeycumines/go-kthread/kthread"
)

type recorderOptions struct {
	writer io.Writer
	kinds  map[kthread.TraceKind]bool
	retain *bool
	runID  string
}

// Option configures a Recorder.
type Option interface {
	applyRecorder(*recorderOptions)
}

type optionImpl struct {
	applyRecorderFunc func(*recorderOptions)
}

func (o *optionImpl) applyRecorder(opts *recorderOptions) {
	o.applyRecorderFunc(opts)
}

// WithWriter writes each event as a JSON line to w. Events are then not
// retained in memory, unless WithRetain(true) is also given.
func WithWriter(w io.Writer) Option {
	return &optionImpl{func(opts *recorderOptions) {
		opts.writer = w
	}}
}

// WithRetain sets whether events are kept in memory, see Recorder.Events.
// Defaults to true without a writer, false with one.
func WithRetain(retain bool) Option {
	return &optionImpl{func(opts *recorderOptions) {
		opts.retain = &retain
	}}
}

// WithRunID sets the run identifier. Defaults to a random UUID.
func WithRunID(id string) Option {
	return &optionImpl{func(opts *recorderOptions) {
		opts.runID = id
	}}
}

// WithKinds records only events of the given kinds.
func WithKinds(kinds ...kthread.TraceKind) Option {
	return &optionImpl{func(opts *recorderOptions) {
		opts.kinds = make(map[kthread.TraceKind]bool, len(kinds))
		for _, k := range kinds {
			opts.kinds[k] = true
		}
	}}
}

func resolveOptions(opts []Option) (cfg recorderOptions, retain bool) {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyRecorder(&cfg)
	}
	if cfg.retain != nil {
		return cfg, *cfg.retain
	}
	return cfg, cfg.writer == nil
}
