package core

import (
	"bytes"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// ProcessRun wraps an *exec.Cmd. The process runs asynchronously; Poll
// reports its progress and performs the transition to the terminal state.
//
// A background goroutine waits on the process but never touches run state:
// output is buffered and every event is emitted from Poll on the caller's
// goroutine.
type ProcessRun struct {
	runningState

	id       string
	name     string
	cmd      *exec.Cmd
	tags     Tags
	priority float64
	events   *EventChannel

	updateOnPoll   bool
	updateOnOutput bool

	stdout *lineBuffer
	stderr *lineBuffer

	done    chan struct{}
	waitErr error // written before done is closed

	completed  bool
	successful bool
	failure    error
	last       string
	lastType   string
}

var (
	_ Run       = (*ProcessRun)(nil)
	_ Outputter = (*ProcessRun)(nil)
)

// NewProcessRun creates a run for cmd, which must not have been started.
// The name defaults to the command line.
func NewProcessRun(cmd *exec.Cmd, opts ...RunOption) *ProcessRun {
	o := defaultRunOptions()
	for _, opt := range opts {
		opt(&o)
	}
	name := o.name
	if name == "" && cmd != nil {
		name = cmd.String()
	}
	return &ProcessRun{
		id:             newRunID(),
		name:           name,
		cmd:            cmd,
		tags:           o.tags,
		priority:       o.priority,
		events:         NewEventChannel(RunEvents),
		updateOnPoll:   o.updateOnPoll,
		updateOnOutput: o.updateOnOutput,
		stdout:         &lineBuffer{},
		stderr:         &lineBuffer{},
		done:           make(chan struct{}),
		lastType:       "stdout",
	}
}

func (r *ProcessRun) ID() string   { return r.id }
func (r *ProcessRun) Name() string { return r.name }

// Process returns the wrapped command, e.g. to signal the process.
func (r *ProcessRun) Process() *exec.Cmd { return r.cmd }

func (r *ProcessRun) AddListener(kind EventKind, listener Listener) error {
	return r.events.AddListener(kind, listener)
}

// Start launches the process. A process that cannot be launched finishes
// immediately as failed.
func (r *ProcessRun) Start() {
	if r.HasStarted() {
		return
	}

	r.setStarted()
	r.emit(EventStarted)

	if r.cmd == nil {
		r.finish(false, &ProcessFailedError{Command: "<nil>", ExitCode: -1, Err: ErrInvalidArgument})
		return
	}

	r.cmd.Stdout = teeWriter(r.cmd.Stdout, r.stdout)
	r.cmd.Stderr = teeWriter(r.cmd.Stderr, r.stderr)

	if err := r.cmd.Start(); err != nil {
		r.finish(false, &ProcessFailedError{Command: r.cmd.String(), ExitCode: -1, Err: err})
		return
	}

	go func() {
		r.waitErr = r.cmd.Wait()
		close(r.done)
	}()
}

// Poll reports whether the process is still running.
func (r *ProcessRun) Poll() bool {
	if r.completed || !r.HasStarted() {
		return false
	}

	select {
	case <-r.done:
	default:
		r.drainOutput(false)
		if r.updateOnPoll {
			r.emit(EventUpdated)
		}
		return true
	}

	r.drainOutput(true)

	if r.waitErr == nil && r.cmd.ProcessState != nil && r.cmd.ProcessState.Success() {
		r.finish(true, nil)
		return false
	}

	exitCode := -1
	if r.cmd.ProcessState != nil {
		exitCode = r.cmd.ProcessState.ExitCode()
	}
	r.finish(false, &ProcessFailedError{
		Command:  r.cmd.String(),
		ExitCode: exitCode,
		Stdout:   r.stdout.String(),
		Stderr:   r.stderr.String(),
		Err:      r.waitErr,
	})
	return false
}

func (r *ProcessRun) finish(successful bool, failure error) {
	r.completed = true
	r.setFinished()
	r.successful = successful
	r.failure = failure

	if successful {
		r.emit(EventSuccessful)
	} else {
		r.emit(EventFailed)
	}
	r.emit(EventCompleted)
}

func (r *ProcessRun) drainOutput(final bool) {
	r.drain(r.stdout, "stdout", final)
	r.drain(r.stderr, "stderr", final)
}

func (r *ProcessRun) drain(buf *lineBuffer, kind string, final bool) {
	for _, line := range buf.take(final) {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			continue
		}
		r.last = line
		r.lastType = kind
		if r.updateOnOutput {
			r.emit(EventUpdated)
		}
	}
}

// IsRunning reports whether the process has been started and not yet seen
// to finish by Poll.
func (r *ProcessRun) IsRunning() bool {
	return r.State() == StateRunning
}

func (r *ProcessRun) IsSuccessful() bool { return r.successful }

// Errors returns the synthesized *ProcessFailedError once the process has failed.
func (r *ProcessRun) Errors() []error {
	if r.failure == nil {
		return nil
	}
	return []error{r.failure}
}

func (r *ProcessRun) Tags() Tags { return r.tags }

// Progress is not measurable for an arbitrary process.
func (r *ProcessRun) Progress() *Progress { return nil }

func (r *ProcessRun) Priority() float64 { return r.priority }

func (r *ProcessRun) SetPriority(priority float64) {
	setPriority(r, r.events, &r.priority, priority)
}

func (r *ProcessRun) LastMessage() string     { return r.last }
func (r *ProcessRun) LastMessageType() string { return r.lastType }

// Stdout returns everything the process wrote to stdout so far.
func (r *ProcessRun) Stdout() string { return r.stdout.String() }

// Stderr returns everything the process wrote to stderr so far.
func (r *ProcessRun) Stderr() string { return r.stderr.String() }

func (r *ProcessRun) emit(kind EventKind) {
	r.events.emit(Event{Kind: kind, Source: r, Run: r})
}

func teeWriter(existing io.Writer, buf *lineBuffer) io.Writer {
	if existing == nil {
		return buf
	}
	return io.MultiWriter(existing, buf)
}

// =============================================================================
// lineBuffer: Output capture shared with the exec copying goroutines
// =============================================================================

type lineBuffer struct {
	mu      sync.Mutex
	all     bytes.Buffer
	partial []byte
	lines   []string
}

func (b *lineBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.all.Write(p)
	b.partial = append(b.partial, p...)
	for {
		i := bytes.IndexByte(b.partial, '\n')
		if i < 0 {
			break
		}
		b.lines = append(b.lines, string(b.partial[:i]))
		b.partial = b.partial[i+1:]
	}
	return len(p), nil
}

// take returns the complete lines written since the last call. With final
// set, a trailing line without newline is returned as well.
func (b *lineBuffer) take(final bool) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines := b.lines
	b.lines = nil
	if final && len(b.partial) > 0 {
		lines = append(lines, string(b.partial))
		b.partial = nil
	}
	return lines
}

func (b *lineBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.all.String()
}
