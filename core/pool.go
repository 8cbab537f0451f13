package core

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"time"
)

// DefaultCheckInterval is the sleep between polls used by Run when callers have no preference.
const DefaultCheckInterval = 100 * time.Millisecond

// Pool schedules a set of runs with bounded concurrency and priority ordering.
//
// Every member is in exactly one of the waiting, running and finished
// partitions. Waiting runs are promoted in descending priority order, ties
// in admission order, while fewer than MaxSimultaneous runs are running.
//
// A Pool is itself a Collection, so it can be added to another pool, which
// then schedules its leaf runs directly.
//
// Pool is not safe for concurrent use. Admission, polling and every event
// handler run on the goroutine calling Add, Start, Poll or Run.
type Pool struct {
	runningState

	id       string
	name     string
	tags     Tags
	priority float64
	events   *EventChannel

	maxSimultaneous int
	runInstantly    bool

	items    []Run
	waiting  []Run
	running  []Run
	finished []Run
	queue    *RunQueue
	errs     []error

	// initialised holds promotion and completion back until the constructor
	// has admitted every initial item, so their priorities are respected.
	initialised bool

	// promoting is set while startNext runs. Listeners that add work during
	// a promotion leave it to the running loop.
	promoting bool

	history runHistory
	logger  Logger
	metrics Metrics
}

var _ Collection = (*Pool)(nil)

// NewPool creates a pool and admits items, see Add. No item is started
// before all of them are admitted.
func NewPool(cfg PoolConfig, items ...any) (*Pool, error) {
	cfg = cfg.withDefaults()
	p := &Pool{
		id:              newRunID(),
		name:            cfg.Name,
		tags:            cfg.Tags,
		priority:        cfg.Priority,
		events:          NewEventChannel(PoolEvents),
		maxSimultaneous: cfg.MaxSimultaneous,
		runInstantly:    cfg.RunInstantly,
		queue:           NewRunQueue(),
		history:         newRunHistory(cfg.HistorySize),
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
	}

	for _, item := range items {
		if err := p.Add(item); err != nil {
			return nil, err
		}
	}

	p.initialised = true
	if p.IsRunning() || p.runInstantly {
		p.startNext()
	}
	p.maybeFinish()
	return p, nil
}

func (p *Pool) ID() string   { return p.id }
func (p *Pool) Name() string { return p.name }

func (p *Pool) AddListener(kind EventKind, listener Listener) error {
	return p.events.AddListener(kind, listener)
}

// =============================================================================
// Admission
// =============================================================================

// Add admits item into the pool. item is one of:
//   - a Collection (such as another *Pool): its leaf runs are admitted and
//     runs it admits later follow automatically
//   - a Run
//   - an *exec.Cmd, wrapped in a ProcessRun with tags
//   - a func() error, wrapped in a CallbackRun with tags
//
// tags only apply to items the pool wraps itself. Adding a running item to a
// pool that is neither running nor RunInstantly fails with ErrNotRunning;
// anything else fails with ErrInvalidArgument. Adding a member again is a no-op.
// A finished pool that admits an unstarted run is running again.
func (p *Pool) Add(item any, tags ...Tag) error {
	switch v := item.(type) {
	case nil:
		return p.reject(fmt.Errorf("%w: item is nil", ErrInvalidArgument))
	case *exec.Cmd:
		if v == nil {
			return p.reject(fmt.Errorf("%w: command is nil", ErrInvalidArgument))
		}
		return p.Add(NewProcessRun(v, WithTags(tags...)))
	case func() error:
		if v == nil {
			return p.reject(fmt.Errorf("%w: function is nil", ErrInvalidArgument))
		}
		return p.Add(NewFuncRun(v, WithTags(tags...)))
	case Collection:
		if v == Collection(p) {
			return p.reject(fmt.Errorf("%w: a pool cannot be added to itself", ErrInvalidArgument))
		}
		if err := p.checkAdmissible(v); err != nil {
			return err
		}
		return p.addCollection(v)
	case Run:
		if err := p.checkAdmissible(v); err != nil {
			return err
		}
		return p.addRun(v)
	default:
		return p.reject(fmt.Errorf("%w: %T does not implement Run", ErrInvalidArgument, item))
	}
}

func (p *Pool) checkAdmissible(run Run) error {
	if run.IsRunning() && !p.IsRunning() && !p.runInstantly {
		return p.reject(fmt.Errorf("%w: unable to add a running item when the pool has not started", ErrNotRunning))
	}
	return nil
}

// addCollection admits the current leaves of c and every leaf it admits later.
func (p *Pool) addCollection(c Collection) error {
	err := c.AddListener(EventRunAdded, func(ev Event) {
		if ev.Run == nil {
			return
		}
		if err := p.Add(ev.Run); err != nil {
			p.logger.Warn("unable to follow run added to nested pool",
				F("pool", p.name), F("run", RunName(ev.Run)), F("error", err))
		}
	})
	if err != nil {
		return p.reject(fmt.Errorf("%w: nested collection does not emit run-added events: %v", ErrInvalidArgument, err))
	}

	for _, child := range c.All() {
		if err := p.Add(child); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pool) addRun(run Run) error {
	if p.isMember(run) {
		return nil
	}

	if err := p.listen(run); err != nil {
		return p.reject(err)
	}

	p.items = append(p.items, run)

	switch {
	case run.IsRunning():
		p.running = append(p.running, run)
	case run.HasStarted():
		p.finished = append(p.finished, run)
		if !run.IsSuccessful() {
			p.errs = append(p.errs, run.Errors()...)
		}
	default:
		p.waiting = append(p.waiting, run)
		p.queue.Push(run, run.Priority())
	}

	p.logger.Debug("run added",
		F("pool", p.name), F("run", RunName(run)), F("priority", run.Priority()), F("tags", run.Tags()))
	p.events.emit(Event{Kind: EventRunAdded, Source: p, Run: run})

	switch {
	case run.IsRunning():
		p.enterRunning()
	case run.HasStarted():
		p.enterRunning()
		if p.initialised {
			p.maybeFinish()
		}
	default:
		if p.State() == StateNotRunning {
			p.enterRunning()
		}
		p.metrics.RecordQueueDepth(p.name, len(p.waiting))
		if p.runInstantly || p.IsRunning() {
			p.startNext()
		}
	}
	return nil
}

// listen registers the pool's handlers on run. started, completed and failed
// are required; priority changes are followed when the run emits them.
func (p *Pool) listen(run Run) error {
	required := []struct {
		kind    EventKind
		handler Listener
	}{
		{EventStarted, p.onRunStarted},
		{EventCompleted, p.onRunCompleted},
		{EventFailed, p.onRunFailed},
	}
	for _, r := range required {
		if err := run.AddListener(r.kind, r.handler); err != nil {
			return fmt.Errorf("%w: %T does not emit %s events: %v", ErrInvalidArgument, run, r.kind, err)
		}
	}

	if err := run.AddListener(EventPriorityChanged, p.onPriorityChanged); err != nil && !errors.Is(err, ErrInvalidEventName) {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

func (p *Pool) reject(err error) error {
	reason := "invalid_argument"
	if errors.Is(err, ErrNotRunning) {
		reason = "not_running"
	}
	p.metrics.RecordRunRejected(p.name, reason)
	p.logger.Warn("run rejected", F("pool", p.name), F("reason", reason), F("error", err))
	return err
}

// =============================================================================
// Child event handlers
// =============================================================================

func (p *Pool) onRunStarted(ev Event) {
	if !p.isMember(ev.Run) {
		return
	}
	p.markStarted(ev.Run)
}

func (p *Pool) onRunCompleted(ev Event) {
	if !p.isMember(ev.Run) {
		return
	}
	p.markCompleted(ev.Run)
}

func (p *Pool) onRunFailed(ev Event) {
	if !p.isMember(ev.Run) {
		return
	}
	errs := ev.Run.Errors()
	p.errs = append(p.errs, errs...)
	for _, err := range errs {
		p.metrics.RecordRunFailure(p.name, err)
	}
}

// onPriorityChanged rebuilds the queue when a waiting run changes priority.
// The queue has no in-place key update.
func (p *Pool) onPriorityChanged(ev Event) {
	if !slices.Contains(p.waiting, ev.Run) {
		return
	}
	p.logger.Debug("run priority changed",
		F("pool", p.name), F("run", RunName(ev.Run)), F("from", ev.OldPriority), F("to", ev.Priority))
	p.queue.Rebuild(p.waiting)
}

// markStarted moves run from waiting to running. It reports false when run was not waiting.
func (p *Pool) markStarted(run Run) bool {
	if !removeRun(&p.waiting, run) {
		return false
	}
	p.running = append(p.running, run)
	p.logger.Debug("run started", F("pool", p.name), F("run", RunName(run)), F("running", len(p.running)))
	p.enterRunning()
	p.events.emit(Event{Kind: EventUpdated, Source: p, Run: p})
	return true
}

func (p *Pool) markCompleted(run Run) {
	if !removeRun(&p.running, run) && !removeRun(&p.waiting, run) {
		return
	}
	p.finished = append(p.finished, run)

	rec := recordRun(run)
	p.history.Add(rec)
	p.metrics.RecordRunDuration(p.name, rec.Duration, rec.Successful)
	p.logger.Debug("run completed",
		F("pool", p.name), F("run", rec.Name), F("successful", rec.Successful), F("duration", rec.Duration))

	p.events.emit(Event{Kind: EventUpdated, Source: p, Run: p})
	p.maybeFinish()
}

// enterRunning moves the pool into StateRunning, from not started or, when
// new work arrived after completion, from its terminal state.
func (p *Pool) enterRunning() {
	switch p.State() {
	case StateRunning:
		return
	case StateNotStarted:
		p.setStarted()
	default:
		p.resume()
	}
	p.logger.Debug("pool started", F("pool", p.name), F("total", len(p.items)))
	p.events.emit(Event{Kind: EventStarted, Source: p, Run: p})
}

// maybeFinish moves a running pool into its terminal state once nothing is
// waiting or running.
func (p *Pool) maybeFinish() {
	if p.State() != StateRunning || len(p.waiting) > 0 || len(p.running) > 0 {
		return
	}
	p.setFinished()

	successful := p.IsSuccessful()
	p.logger.Debug("pool finished",
		F("pool", p.name), F("successful", successful), F("duration", p.Duration()), F("errors", len(p.errs)))
	if successful {
		p.events.emit(Event{Kind: EventSuccessful, Source: p, Run: p})
	} else {
		p.events.emit(Event{Kind: EventFailed, Source: p, Run: p})
	}
	p.events.emit(Event{Kind: EventCompleted, Source: p, Run: p})
}

// =============================================================================
// Scheduling
// =============================================================================

// startNext promotes waiting runs into the slots free on entry. A run that
// finishes synchronously inside Start still used its slot for this round.
// Runs admitted by listeners during the round are queued and considered by
// the same loop.
func (p *Pool) startNext() {
	if !p.initialised || p.promoting {
		return
	}
	p.promoting = true
	defer func() { p.promoting = false }()

	slots := p.maxSimultaneous - len(p.running)

	for !p.queue.IsEmpty() {
		bounded := p.maxSimultaneous != Unbounded
		if bounded && (slots <= 0 || len(p.running) >= p.maxSimultaneous) {
			break
		}
		run, _ := p.queue.Pop()
		if run.HasStarted() {
			// Started by someone else while waiting.
			continue
		}

		p.logger.Debug("promoting run", F("pool", p.name), F("run", RunName(run)), F("priority", run.Priority()))
		run.Start()
		// Runs that do not report started still leave the waiting partition.
		p.markStarted(run)
		slots--
	}

	p.metrics.RecordQueueDepth(p.name, len(p.waiting))
}

// Start promotes as many waiting runs as the pool has capacity for.
func (p *Pool) Start() {
	p.startNext()
}

// Poll polls every running member, promotes waiting runs into freed slots,
// and reports whether the pool is still running.
func (p *Pool) Poll() bool {
	for _, run := range slices.Clone(p.running) {
		run.Poll()
	}
	p.startNext()
	return p.IsRunning()
}

// Run blocks until every member has finished, sleeping interval between
// polls, and reports whether all of them were successful. An interval of 0
// polls without delay.
func (p *Pool) Run(interval time.Duration) bool {
	ok, _ := p.RunContext(context.Background(), interval)
	return ok
}

// RunContext is Run with cancellation. When ctx is done it stops polling and
// returns ctx.Err(); runs already started are left as they are.
func (p *Pool) RunContext(ctx context.Context, interval time.Duration) (bool, error) {
	p.startNext()

	for p.Poll() {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if interval <= 0 {
			continue
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return p.IsSuccessful(), nil
}

// =============================================================================
// Run contract
// =============================================================================

func (p *Pool) IsRunning() bool {
	return p.State() == StateRunning
}

// IsSuccessful reports whether the pool has finished and every member was successful.
func (p *Pool) IsSuccessful() bool {
	if p.State() != StateNotRunning {
		return false
	}
	for _, run := range p.items {
		if !run.IsSuccessful() {
			return false
		}
	}
	return true
}

// Errors returns the failures accumulated from every failed member.
func (p *Pool) Errors() []error {
	return slices.Clone(p.errs)
}

func (p *Pool) Tags() Tags { return p.tags }

// Progress returns (finished, total, finished/total), (0, 0, 0) for an empty pool.
func (p *Pool) Progress() *Progress {
	finished, total := len(p.finished), len(p.items)
	progress := &Progress{Current: float64(finished), Max: float64(total)}
	if total > 0 {
		progress.Fraction = float64(finished) / float64(total)
	}
	return progress
}

func (p *Pool) Priority() float64 { return p.priority }

// SetPriority sets the pool's own priority. It does not reorder members.
func (p *Pool) SetPriority(priority float64) {
	p.priority = priority
}

// =============================================================================
// Accessors
// =============================================================================

// All returns every member in admission order.
func (p *Pool) All() []Run { return slices.Clone(p.items) }

// Waiting returns the members not started yet, in admission order.
func (p *Pool) Waiting() []Run { return slices.Clone(p.waiting) }

// Running returns the running members in the order they started.
func (p *Pool) Running() []Run { return slices.Clone(p.running) }

// Finished returns the finished members in completion order.
func (p *Pool) Finished() []Run { return slices.Clone(p.finished) }

// Len returns the number of members.
func (p *Pool) Len() int { return len(p.items) }

func (p *Pool) MaxSimultaneous() int { return p.maxSimultaneous }

// SetMaxSimultaneous changes the bound; it applies from the next promotion.
func (p *Pool) SetMaxSimultaneous(max int) {
	if max < 1 {
		max = Unbounded
	}
	p.maxSimultaneous = max
}

func (p *Pool) RunInstantly() bool { return p.runInstantly }

func (p *Pool) SetRunInstantly(runInstantly bool) {
	p.runInstantly = runInstantly
}

// History returns up to limit finished runs, newest first. limit <= 0 returns all kept records.
func (p *Pool) History(limit int) []RunRecord {
	return p.history.Recent(limit)
}

// LastFinished returns the record of the most recently finished run.
func (p *Pool) LastFinished() (RunRecord, bool) {
	return p.history.Last()
}

// Stats returns a snapshot of the pool partitions.
func (p *Pool) Stats() PoolStats {
	failed := 0
	for _, run := range p.finished {
		if !run.IsSuccessful() {
			failed++
		}
	}
	return PoolStats{
		ID:              p.id,
		Name:            p.name,
		State:           p.State(),
		MaxSimultaneous: p.maxSimultaneous,
		Waiting:         len(p.waiting),
		Running:         len(p.running),
		Finished:        len(p.finished),
		Total:           len(p.items),
		Failed:          failed,
		Errors:          len(p.errs),
		Duration:        p.Duration(),
	}
}

func (p *Pool) isMember(run Run) bool {
	return slices.Contains(p.items, run)
}

func removeRun(runs *[]Run, run Run) bool {
	i := slices.Index(*runs, run)
	if i < 0 {
		return false
	}
	*runs = slices.Delete(*runs, i, i+1)
	return true
}
