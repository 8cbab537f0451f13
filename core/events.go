package core

import (
	"fmt"
	"strings"
)

// =============================================================================
// EventKind: Lifecycle events emitted by runs and pools
// =============================================================================

type EventKind uint8

const (
	EventStarted EventKind = iota + 1
	EventCompleted
	EventSuccessful
	EventFailed
	EventUpdated

	// EventRunAdded is emitted by a pool after a run has been admitted.
	EventRunAdded

	// EventPriorityChanged is emitted by a run whose priority changed before it started.
	EventPriorityChanged
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventCompleted:
		return "completed"
	case EventSuccessful:
		return "successful"
	case EventFailed:
		return "failed"
	case EventUpdated:
		return "updated"
	case EventRunAdded:
		return "run.added"
	case EventPriorityChanged:
		return "priority.changed"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// KindSet is the fixed allow-list of event kinds an entity may emit.
type KindSet uint16

func NewKindSet(kinds ...EventKind) KindSet {
	var s KindSet
	for _, k := range kinds {
		s |= 1 << k
	}
	return s
}

func (s KindSet) Has(k EventKind) bool {
	return k > 0 && k < 16 && s&(1<<k) != 0
}

// Kinds returns the members of the set in declaration order.
func (s KindSet) Kinds() []EventKind {
	var out []EventKind
	for k := EventStarted; k <= EventPriorityChanged; k++ {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s KindSet) String() string {
	kinds := s.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}

var (
	// RunEvents is the allow-list of leaf runs.
	RunEvents = NewKindSet(EventStarted, EventCompleted, EventSuccessful, EventFailed, EventUpdated, EventPriorityChanged)

	// PoolEvents is the allow-list of pools.
	PoolEvents = NewKindSet(EventStarted, EventCompleted, EventSuccessful, EventFailed, EventUpdated, EventRunAdded)
)

// Event describes a single lifecycle notification.
//
// Source is the entity that dispatched the event. Run is the run the event is
// about: the same as Source for run events, the admitted run for EventRunAdded.
// Priority and OldPriority are only set for EventPriorityChanged.
type Event struct {
	Kind        EventKind
	Source      Run
	Run         Run
	Priority    float64
	OldPriority float64
}

type Listener func(ev Event)

// Dispatcher is implemented by everything that accepts event listeners.
type Dispatcher interface {
	AddListener(kind EventKind, listener Listener) error
}

// =============================================================================
// EventChannel: Name-checked synchronous publish/subscribe
// =============================================================================

// EventChannel dispatches events synchronously, in registration order, on the
// calling goroutine. It is not safe for concurrent use.
type EventChannel struct {
	allowed   KindSet
	listeners map[EventKind][]Listener
}

func NewEventChannel(allowed KindSet) *EventChannel {
	return &EventChannel{
		allowed:   allowed,
		listeners: make(map[EventKind][]Listener),
	}
}

// Allowed returns the allow-list of this channel.
func (c *EventChannel) Allowed() KindSet {
	return c.allowed
}

func (c *EventChannel) AddListener(kind EventKind, listener Listener) error {
	if err := c.check(kind); err != nil {
		return err
	}
	if listener == nil {
		return fmt.Errorf("%w: nil listener for %s", ErrInvalidArgument, kind)
	}
	c.listeners[kind] = append(c.listeners[kind], listener)
	return nil
}

// Dispatch calls every listener registered for ev.Kind before returning.
// Listeners registered while dispatching are called from the next dispatch on.
func (c *EventChannel) Dispatch(ev Event) error {
	if err := c.check(ev.Kind); err != nil {
		return err
	}
	for _, l := range c.listeners[ev.Kind] {
		l(ev)
	}
	return nil
}

// ListenerCount returns the number of listeners registered for kind.
func (c *EventChannel) ListenerCount(kind EventKind) int {
	return len(c.listeners[kind])
}

// emit dispatches an event kind the owner declared. A disallowed kind is a
// programming error and panics.
func (c *EventChannel) emit(ev Event) {
	if err := c.Dispatch(ev); err != nil {
		panic(err)
	}
}

func (c *EventChannel) check(kind EventKind) error {
	if !c.allowed.Has(kind) {
		return fmt.Errorf("%w: %s is not one of the expected: %s", ErrInvalidEventName, kind, c.allowed)
	}
	return nil
}
