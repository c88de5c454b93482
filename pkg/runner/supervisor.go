// Package runner drives an interpreter over the current program under a step
// budget and a cooperative cancellation token.
package runner

import (
	"runtime"

	"github.com/antibyte/picobasic/pkg/configuration"
	"github.com/antibyte/picobasic/pkg/logger"
	"github.com/antibyte/picobasic/pkg/program"
)

// State is the lifecycle of one run.
type State int

const (
	NotStarted State = iota
	Running
	Complete
	Break
	StepLimitExceeded
	OutOfMemory
)

var stateNames = map[State]string{
	NotStarted:        "not started",
	Running:           "running",
	Complete:          "complete",
	Break:             "break",
	StepLimitExceeded: "step limit exceeded",
	OutOfMemory:       "out of memory",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool { return s >= Complete }

// Interpreter is the engine a Supervisor drives. Step performs one unit of
// work; Finished reports that the program has ended, normally or with an
// error the engine has already reported.
type Interpreter interface {
	Init(source []byte) error
	Step()
	Finished() bool
}

// releaser is implemented by interpreters that hold on to the source buffer
// between runs.
type releaser interface {
	Release()
}

const (
	DefaultMaxSteps      = 5_000_000
	DefaultYieldInterval = 16384
)

// Options bound a run.
type Options struct {
	MaxSteps      uint64
	YieldInterval uint64
	// SourceLimit bounds the source buffer in bytes; zero means unlimited.
	SourceLimit int
}

// DefaultOptions returns the built-in limits.
func DefaultOptions() Options {
	return Options{
		MaxSteps:      DefaultMaxSteps,
		YieldInterval: DefaultYieldInterval,
		SourceLimit:   128 * 1024,
	}
}

// OptionsFromConfig reads the [Execution] and [Program] sections.
func OptionsFromConfig() Options {
	opts := Options{
		MaxSteps:      uint64(configuration.GetInt("Execution", "max_steps", DefaultMaxSteps)),
		YieldInterval: uint64(configuration.GetInt("Execution", "yield_interval", DefaultYieldInterval)),
		SourceLimit:   configuration.GetInt("Program", "source_limit_kb", 128) * 1024,
	}
	if opts.MaxSteps == 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.YieldInterval == 0 {
		opts.YieldInterval = DefaultYieldInterval
	}
	return opts
}

// Result describes a finished run.
type Result struct {
	State State
	Steps uint64
	// Err is set when the interpreter refused the source.
	Err error
}

// Supervisor runs programs one at a time. It never modifies the table it is
// given.
type Supervisor struct {
	interp Interpreter
	poller Poller
	cancel *CancelToken
	opts   Options
	state  State
}

// NewSupervisor returns a Supervisor. A nil poller is replaced by one that
// does nothing.
func NewSupervisor(interp Interpreter, poller Poller, cancel *CancelToken, opts Options) *Supervisor {
	if poller == nil {
		poller = NopPoller{}
	}
	if cancel == nil {
		cancel = &CancelToken{}
	}
	if opts.MaxSteps == 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.YieldInterval == 0 {
		opts.YieldInterval = DefaultYieldInterval
	}
	return &Supervisor{interp: interp, poller: poller, cancel: cancel, opts: opts}
}

// State returns the state of the last run.
func (s *Supervisor) State() State { return s.state }

// Token returns the cancellation token checked by every run.
func (s *Supervisor) Token() *CancelToken { return s.cancel }

// Run builds the source buffer from t, appends a terminator when none is
// present and steps the interpreter until it finishes, the token is
// cancelled or the step budget is spent.
func (s *Supervisor) Run(t *program.Table) Result {
	s.state = NotStarted

	buf, err := program.Build(t, s.opts.SourceLimit)
	if err != nil {
		s.state = OutOfMemory
		logger.Warn(logger.AreaRunner, "source buffer for %d lines rejected: %v", t.Len(), err)
		return Result{State: OutOfMemory, Err: err}
	}
	buf = program.EnsureTerminator(buf, t.MaxNumber())

	// The buffer is dropped with this frame; engines that keep it let go here.
	defer func() {
		if r, ok := s.interp.(releaser); ok {
			r.Release()
		}
	}()

	s.state = Running
	logger.RunnerDebug("run started: %d lines, %d bytes", t.Len(), len(buf))

	if err := s.interp.Init(buf); err != nil {
		s.state = Complete
		return Result{State: Complete, Err: err}
	}

	var steps uint64
	for {
		if s.cancel.Cancelled() {
			s.state = Break
			break
		}
		s.poller.Poll()
		s.interp.Step()
		steps++
		if s.interp.Finished() {
			s.state = Complete
			break
		}
		if steps > s.opts.MaxSteps {
			s.state = StepLimitExceeded
			break
		}
		if steps%s.opts.YieldInterval == 0 {
			runtime.Gosched()
		}
	}

	logger.RunnerInfo("run ended: %s after %d steps", s.state, steps)
	return Result{State: s.state, Steps: steps}
}
