package core

import (
	"context"
	"runtime/debug"
	"strings"
)

// Callback is the work of a CallbackRun. The returned output, if any, is
// reported line by line as the run's last message.
type Callback func(ctx context.Context) (string, error)

// CallbackRun runs a Go function synchronously inside Start. By the time
// Start returns the run has emitted started, successful or failed, and
// completed, so it never reports itself as running.
type CallbackRun struct {
	runningState

	id       string
	name     string
	callback Callback
	ctx      context.Context
	tags     Tags
	priority float64
	events   *EventChannel

	updateOnOutput bool

	successful bool
	err        error
	last       string
}

var (
	_ Run       = (*CallbackRun)(nil)
	_ Outputter = (*CallbackRun)(nil)
)

// NewCallbackRun creates a run for cb. The name defaults to the function symbol.
func NewCallbackRun(cb Callback, opts ...RunOption) *CallbackRun {
	o := defaultRunOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newCallbackRun(cb, resolveFuncName(cb, o.name), o)
}

// NewFuncRun creates a CallbackRun for a function that only reports an error.
func NewFuncRun(fn func() error, opts ...RunOption) *CallbackRun {
	o := defaultRunOptions()
	for _, opt := range opts {
		opt(&o)
	}
	name := resolveFuncName(fn, o.name)
	var cb Callback
	if fn != nil {
		cb = func(context.Context) (string, error) { return "", fn() }
	}
	return newCallbackRun(cb, name, o)
}

func newCallbackRun(cb Callback, name string, o runOptions) *CallbackRun {
	return &CallbackRun{
		id:             newRunID(),
		name:           name,
		callback:       cb,
		ctx:            o.ctx,
		tags:           o.tags,
		priority:       o.priority,
		events:         NewEventChannel(RunEvents),
		updateOnOutput: o.updateOnOutput,
	}
}

func (r *CallbackRun) ID() string   { return r.id }
func (r *CallbackRun) Name() string { return r.name }

func (r *CallbackRun) AddListener(kind EventKind, listener Listener) error {
	return r.events.AddListener(kind, listener)
}

// Start runs the callback to completion.
func (r *CallbackRun) Start() {
	if r.HasStarted() {
		return
	}

	r.setStarted()
	r.emit(EventStarted)

	output, err := r.invoke()
	r.handleOutput(output)
	r.setFinished()

	if err != nil {
		r.err = err
		r.emit(EventFailed)
	} else {
		r.successful = true
		r.emit(EventSuccessful)
	}
	r.emit(EventCompleted)
}

func (r *CallbackRun) invoke() (output string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			output = ""
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	if r.callback == nil {
		return "", &PanicError{Value: "callback is nil"}
	}
	return r.callback(r.ctx)
}

func (r *CallbackRun) handleOutput(output string) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			continue
		}
		r.last = line
		if r.updateOnOutput {
			r.emit(EventUpdated)
		}
	}
}

// Poll always returns false: the callback finished inside Start.
func (r *CallbackRun) Poll() bool { return false }

// IsRunning always returns false: the callback finished inside Start.
func (r *CallbackRun) IsRunning() bool { return false }

func (r *CallbackRun) IsSuccessful() bool { return r.successful }

func (r *CallbackRun) Errors() []error {
	if r.err == nil {
		return nil
	}
	return []error{r.err}
}

func (r *CallbackRun) Tags() Tags { return r.tags }

// Progress is not measurable for a callback.
func (r *CallbackRun) Progress() *Progress { return nil }

func (r *CallbackRun) Priority() float64 { return r.priority }

func (r *CallbackRun) SetPriority(priority float64) {
	setPriority(r, r.events, &r.priority, priority)
}

func (r *CallbackRun) LastMessage() string     { return r.last }
func (r *CallbackRun) LastMessageType() string { return "" }

func (r *CallbackRun) emit(kind EventKind) {
	r.events.emit(Event{Kind: kind, Source: r, Run: r})
}
