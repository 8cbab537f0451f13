package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultPriority is the priority of runs and pools that do not set one.
const DefaultPriority = 1.0

// =============================================================================
// Run: The contract every schedulable unit of work satisfies
// =============================================================================

// Run is a unit of work with a monotonic lifecycle:
// StateNotStarted -> StateRunning -> StateNotRunning.
//
// Implementations must be pointer types: pools compare runs by identity.
type Run interface {
	Dispatcher

	ID() string

	// Start begins the work. Calling Start on a run that has already started is a no-op.
	Start()

	// Poll checks the work and reports whether it is still running. The
	// transition to the terminal state happens inside Poll.
	Poll() bool

	IsRunning() bool
	HasStarted() bool

	// IsSuccessful is only meaningful once the run has finished.
	IsSuccessful() bool

	// Errors returns the failures captured by the run.
	Errors() []error

	Tags() Tags
	Duration() time.Duration

	// Progress returns nil when the run cannot measure its progress.
	Progress() *Progress

	Priority() float64
	SetPriority(priority float64)
}

// Collection is a Run made of other runs. Pools admit the leaves of a
// Collection instead of the Collection itself, and follow its EventRunAdded
// events to admit leaves added later.
type Collection interface {
	Run
	All() []Run
}

// Outputter is implemented by runs that report a last message from their output.
type Outputter interface {
	LastMessage() string
	LastMessageType() string
}

type RunState int

const (
	StateNotStarted RunState = iota
	StateRunning
	StateNotRunning
)

func (s RunState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateNotRunning:
		return "not_running"
	default:
		return "unknown"
	}
}

// Progress is (Current, Max, Fraction), Fraction being Current/Max in [0, 1].
type Progress struct {
	Current  float64
	Max      float64
	Fraction float64
}

// =============================================================================
// Tags: Ordered key-value labels used for display and grouping
// =============================================================================

type Tag struct {
	Key   string
	Value string
}

// T creates a Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// Tags keeps insertion order. Keys are not required to be unique.
type Tags []Tag

// Get returns the value of the first tag with the given key.
func (t Tags) Get(key string) (string, bool) {
	for _, tag := range t {
		if tag.Key == key {
			return tag.Value, true
		}
	}
	return "", false
}

// Map returns the tags as a map; later duplicates win.
func (t Tags) Map() map[string]string {
	m := make(map[string]string, len(t))
	for _, tag := range t {
		m[tag.Key] = tag.Value
	}
	return m
}

func (t Tags) String() string {
	parts := make([]string, len(t))
	for i, tag := range t {
		if tag.Key == "" {
			parts[i] = tag.Value
			continue
		}
		parts[i] = tag.Key + "=" + tag.Value
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// RunOption: Shared construction options for the run implementations
// =============================================================================

type runOptions struct {
	name           string
	tags           Tags
	priority       float64
	ctx            context.Context
	updateOnPoll   bool
	updateOnOutput bool
}

type RunOption func(*runOptions)

func defaultRunOptions() runOptions {
	return runOptions{
		priority:       DefaultPriority,
		ctx:            context.Background(),
		updateOnPoll:   true,
		updateOnOutput: true,
	}
}

func WithName(name string) RunOption {
	return func(o *runOptions) { o.name = name }
}

func WithTags(tags ...Tag) RunOption {
	return func(o *runOptions) { o.tags = append(o.tags, tags...) }
}

func WithPriority(priority float64) RunOption {
	return func(o *runOptions) { o.priority = priority }
}

// WithContext sets the context handed to a callback.
func WithContext(ctx context.Context) RunOption {
	return func(o *runOptions) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// WithUpdateOnPoll controls whether a ProcessRun emits EventUpdated on every poll while running.
func WithUpdateOnPoll(update bool) RunOption {
	return func(o *runOptions) { o.updateOnPoll = update }
}

// WithUpdateOnOutput controls whether a run emits EventUpdated for every output line.
func WithUpdateOnOutput(update bool) RunOption {
	return func(o *runOptions) { o.updateOnOutput = update }
}

// =============================================================================
// runningState: Timestamps and lifecycle state shared by runs and pools
// =============================================================================

type runningState struct {
	state      RunState
	startedAt  time.Time
	finishedAt time.Time
}

func (s *runningState) setStarted() {
	s.startedAt = time.Now()
	s.state = StateRunning
}

// resume moves a finished entity back to running, keeping its start time.
func (s *runningState) resume() {
	s.finishedAt = time.Time{}
	s.state = StateRunning
}

func (s *runningState) setFinished() {
	s.finishedAt = time.Now()
	s.state = StateNotRunning
}

func (s *runningState) State() RunState {
	return s.state
}

func (s *runningState) HasStarted() bool {
	return s.state != StateNotStarted
}

// StartedAt returns the zero time when the entity never started.
func (s *runningState) StartedAt() time.Time {
	return s.startedAt
}

// FinishedAt returns the zero time while the entity has not finished.
func (s *runningState) FinishedAt() time.Time {
	return s.finishedAt
}

func (s *runningState) Duration() time.Duration {
	switch {
	case s.startedAt.IsZero():
		return 0
	case !s.finishedAt.IsZero():
		return s.finishedAt.Sub(s.startedAt)
	default:
		return time.Since(s.startedAt)
	}
}

// setPriority stores the new priority and emits EventPriorityChanged while run
// has not started. After start the run has left any queue, so nobody is told.
func setPriority(run Run, events *EventChannel, current *float64, priority float64) {
	old := *current
	*current = priority
	if run.HasStarted() || !events.Allowed().Has(EventPriorityChanged) {
		return
	}
	events.emit(Event{
		Kind:        EventPriorityChanged,
		Source:      run,
		Run:         run,
		Priority:    priority,
		OldPriority: old,
	})
}

func newRunID() string {
	return uuid.NewString()
}
