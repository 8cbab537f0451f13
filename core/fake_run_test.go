package core

import (
	"errors"
)

// fakeRun is a controllable Run. Start moves it to running; Finish completes it.
// With instant set, Start completes it straight away like a CallbackRun.
type fakeRun struct {
	runningState

	id       string
	priority float64
	tags     Tags
	events   *EventChannel

	instant    bool
	fail       bool
	successful bool
	errs       []error
	starts     int
	polls      int
}

func newFakeRun(id string, priority float64) *fakeRun {
	return &fakeRun{
		id:       id,
		priority: priority,
		events:   NewEventChannel(RunEvents),
	}
}

func newInstantRun(id string, priority float64) *fakeRun {
	r := newFakeRun(id, priority)
	r.instant = true
	return r
}

func (r *fakeRun) ID() string   { return r.id }
func (r *fakeRun) Name() string { return r.id }

func (r *fakeRun) AddListener(kind EventKind, listener Listener) error {
	return r.events.AddListener(kind, listener)
}

func (r *fakeRun) Start() {
	if r.HasStarted() {
		return
	}
	r.starts++
	r.setStarted()
	r.emit(EventStarted)
	if r.instant {
		r.Finish(!r.fail)
	}
}

func (r *fakeRun) Poll() bool {
	r.polls++
	return r.IsRunning()
}

// Finish completes a running run.
func (r *fakeRun) Finish(successful bool) {
	r.setFinished()
	r.successful = successful
	if successful {
		r.emit(EventSuccessful)
	} else {
		r.errs = append(r.errs, errors.New(r.id+" failed"))
		r.emit(EventFailed)
	}
	r.emit(EventCompleted)
}

func (r *fakeRun) IsRunning() bool    { return r.State() == StateRunning }
func (r *fakeRun) IsSuccessful() bool { return r.successful }
func (r *fakeRun) Errors() []error    { return r.errs }
func (r *fakeRun) Tags() Tags         { return r.tags }
func (r *fakeRun) Progress() *Progress { return nil }
func (r *fakeRun) Priority() float64  { return r.priority }

func (r *fakeRun) SetPriority(priority float64) {
	setPriority(r, r.events, &r.priority, priority)
}

func (r *fakeRun) emit(kind EventKind) {
	r.events.emit(Event{Kind: kind, Source: r, Run: r})
}

// silentRun only accepts started, so pools must refuse it.
type silentRun struct {
	*fakeRun
}

func newSilentRun(id string) *silentRun {
	r := newFakeRun(id, DefaultPriority)
	r.events = NewEventChannel(NewKindSet(EventStarted))
	return &silentRun{fakeRun: r}
}

func ids(runs []Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID()
	}
	return out
}
