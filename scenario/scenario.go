// Package scenario loads and runs scripted scheduling scenarios, modeled on
// the kernel's alarm, priority and donation test programs.
//
// A scenario is a YAML document naming locks, semaphores and thread
// programs. The bootstrap thread runs the main program, then waits for every
// thread it created. Print steps build the output transcript, which is
// compared against the expected lines.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run of the scheduler.
type Scenario struct {
	Name          string                `yaml:"name"`
	Description   string                `yaml:"description,omitempty"`
	MainPriority  *int                  `yaml:"main_priority,omitempty"`
	TimeSlice     int                   `yaml:"time_slice,omitempty"`
	DonationDepth int                   `yaml:"donation_depth,omitempty"`
	MaxTicks      int64                 `yaml:"max_ticks,omitempty"`
	Locks         []string              `yaml:"locks,omitempty"`
	Semaphores    map[string]uint       `yaml:"semaphores,omitempty"`
	Threads       map[string]ThreadSpec `yaml:"threads,omitempty"`
	Main          []Step                `yaml:"main"`
	Expect        []string              `yaml:"expect,omitempty"`
}

// ThreadSpec is the program of a thread started by a create step.
type ThreadSpec struct {
	Priority int    `yaml:"priority"`
	Steps    []Step `yaml:"steps"`
}

// Step is a single action. Exactly one field must be set.
type Step struct {
	Create      string  `yaml:"create,omitempty"`
	Acquire     string  `yaml:"acquire,omitempty"`
	Release     string  `yaml:"release,omitempty"`
	TryAcquire  string  `yaml:"try_acquire,omitempty"`
	Down        string  `yaml:"down,omitempty"`
	Up          string  `yaml:"up,omitempty"`
	Print       string  `yaml:"print,omitempty"`
	Sleep       *int64  `yaml:"sleep,omitempty"`
	Busy        *int64  `yaml:"busy,omitempty"`
	SetPriority *int    `yaml:"set_priority,omitempty"`
	Repeat      *Repeat `yaml:"repeat,omitempty"`
	Yield       bool    `yaml:"yield,omitempty"`
	Exit        bool    `yaml:"exit,omitempty"`
}

// Repeat runs Steps Count times.
type Repeat struct {
	Count int    `yaml:"count"`
	Steps []Step `yaml:"steps"`
}

// Load reads and validates the scenario file at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes and validates a scenario. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("scenario: empty document")
		}
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks that every step is well-formed and refers to declared
// locks, semaphores and threads, returning all problems found.
func (x *Scenario) Validate() error {
	v := validator{
		sc:    x,
		locks: make(map[string]bool, len(x.Locks)),
	}
	if x.Name == `` {
		v.errorf("name", "missing")
	}
	if x.MainPriority != nil {
		v.priority("main_priority", *x.MainPriority)
	}
	if x.TimeSlice < 0 {
		v.errorf("time_slice", "negative")
	}
	if x.DonationDepth < 0 {
		v.errorf("donation_depth", "negative")
	}
	if x.MaxTicks < 0 {
		v.errorf("max_ticks", "negative")
	}
	for _, name := range x.Locks {
		if v.locks[name] {
			v.errorf("locks", "duplicate lock %q", name)
		}
		v.locks[name] = true
	}
	for name, spec := range x.Threads {
		path := "threads." + name
		v.priority(path+".priority", spec.Priority)
		v.steps(path+".steps", spec.Steps)
	}
	v.main = true
	v.steps("main", x.Main)
	return errors.Join(v.errs...)
}

type validator struct {
	sc    *Scenario
	locks map[string]bool
	errs  []error
	// main is set while checking the bootstrap thread's steps, which
	// must return rather than exit
	main bool
}

func (v *validator) errorf(path, format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf("scenario: %s: %s", path, fmt.Sprintf(format, args...)))
}

func (v *validator) priority(path string, p int) {
	if p < minPriority || p > maxPriority {
		v.errorf(path, "priority %d outside [%d, %d]", p, minPriority, maxPriority)
	}
}

func (v *validator) steps(path string, steps []Step) {
	for i, step := range steps {
		v.step(fmt.Sprintf("%s[%d]", path, i), step)
	}
}

func (v *validator) step(path string, step Step) {
	var n int
	count := func(set bool) {
		if set {
			n++
		}
	}
	count(step.Create != ``)
	count(step.Acquire != ``)
	count(step.Release != ``)
	count(step.TryAcquire != ``)
	count(step.Down != ``)
	count(step.Up != ``)
	count(step.Print != ``)
	count(step.Sleep != nil)
	count(step.Busy != nil)
	count(step.SetPriority != nil)
	count(step.Repeat != nil)
	count(step.Yield)
	count(step.Exit)
	if n != 1 {
		v.errorf(path, "want exactly one action, got %d", n)
		return
	}

	switch {
	case step.Exit && v.main:
		v.errorf(path, "exit is not allowed in main")
	case step.Create != ``:
		if _, ok := v.sc.Threads[step.Create]; !ok {
			v.errorf(path, "unknown thread %q", step.Create)
		}
	case step.Acquire != ``:
		v.lock(path, step.Acquire)
	case step.Release != ``:
		v.lock(path, step.Release)
	case step.TryAcquire != ``:
		v.lock(path, step.TryAcquire)
	case step.Down != ``:
		v.semaphore(path, step.Down)
	case step.Up != ``:
		v.semaphore(path, step.Up)
	case step.Busy != nil && *step.Busy < 0:
		v.errorf(path, "negative busy ticks")
	case step.SetPriority != nil:
		v.priority(path, *step.SetPriority)
	case step.Repeat != nil:
		if step.Repeat.Count < 0 {
			v.errorf(path, "negative repeat count")
		}
		v.steps(path+".repeat", step.Repeat.Steps)
	}
}

func (v *validator) lock(path, name string) {
	if !v.locks[name] {
		v.errorf(path, "unknown lock %q", name)
	}
}

func (v *validator) semaphore(path, name string) {
	if _, ok := v.sc.Semaphores[name]; !ok {
		v.errorf(path, "unknown semaphore %q", name)
	}
}
