// Package monitor logs the activity of pools and runs.
package monitor

import (
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Swind/go-process-pool/core"
)

// partitioned is implemented by pools that expose their partitions.
type partitioned interface {
	Waiting() []core.Run
	Running() []core.Run
	Finished() []core.Run
}

// PoolLogger writes a debug log line for every lifecycle event of the pools
// and runs it monitors. Like the runs themselves it is driven by the pool's
// goroutine and is not safe for concurrent use.
type PoolLogger struct {
	logger  zerolog.Logger
	level   zerolog.Level
	limiter *rate.Limiter
	seen    map[core.Run]struct{}
}

type Option func(*PoolLogger)

// WithLevel sets the level events are logged at. Defaults to debug.
func WithLevel(level zerolog.Level) Option {
	return func(l *PoolLogger) { l.level = level }
}

// WithUpdateRate limits pool updated logs to perSecond, with bursts of burst.
// Other events are never dropped.
func WithUpdateRate(perSecond float64, burst int) Option {
	return func(l *PoolLogger) {
		if perSecond <= 0 {
			l.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func New(logger zerolog.Logger, opts ...Option) *PoolLogger {
	l := &PoolLogger{
		logger: logger,
		level:  zerolog.DebugLevel,
		seen:   make(map[core.Run]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Monitor logs all activity of item. For a pool this includes every run it
// holds now and every run added to it later.
func (l *PoolLogger) Monitor(item core.Run) error {
	if _, ok := l.seen[item]; ok {
		return nil
	}

	if c, ok := item.(core.Collection); ok {
		if err := c.AddListener(core.EventRunAdded, l.onPoolRunAdded); err != nil {
			return err
		}
		if err := c.AddListener(core.EventUpdated, l.onPoolUpdated); err != nil {
			return err
		}
	}

	listeners := []struct {
		kind     core.EventKind
		listener core.Listener
	}{
		{core.EventStarted, l.onRunStarted},
		{core.EventSuccessful, l.onRunSuccessful},
		{core.EventFailed, l.onRunFailed},
		{core.EventCompleted, l.onRunCompleted},
	}
	for _, r := range listeners {
		if err := item.AddListener(r.kind, r.listener); err != nil {
			return fmt.Errorf("monitor %s: %w", core.RunName(item), err)
		}
	}
	l.seen[item] = struct{}{}

	if c, ok := item.(core.Collection); ok {
		for _, child := range c.All() {
			if err := l.Monitor(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *PoolLogger) onPoolRunAdded(ev core.Event) {
	l.logger.WithLevel(l.level).
		Dict("pool", l.describe(ev.Source)).
		Dict("run", l.describe(ev.Run)).
		Msg("run has been added")

	if err := l.Monitor(ev.Run); err != nil {
		l.logger.Warn().Err(err).Str("run", core.RunName(ev.Run)).Msg("unable to monitor added run")
	}
}

func (l *PoolLogger) onPoolUpdated(ev core.Event) {
	if l.limiter != nil && !l.limiter.Allow() {
		return
	}
	l.logger.WithLevel(l.level).Dict("pool", l.describe(ev.Run)).Msg("pool updated")
}

func (l *PoolLogger) onRunStarted(ev core.Event) {
	l.logger.WithLevel(l.level).Dict(l.key(ev.Run), l.describe(ev.Run)).Msg("has started")
}

func (l *PoolLogger) onRunSuccessful(ev core.Event) {
	l.logger.WithLevel(l.level).Dict(l.key(ev.Run), l.describe(ev.Run)).Msg("successfully finished")
}

func (l *PoolLogger) onRunFailed(ev core.Event) {
	errs := ev.Run.Errors()
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	first := ""
	if len(msgs) > 0 {
		first = msgs[0]
	}
	l.logger.WithLevel(l.level).
		Dict(l.key(ev.Run), l.describe(ev.Run)).
		Strs("errors", msgs).
		Msgf("failed - %s", first)
}

func (l *PoolLogger) onRunCompleted(ev core.Event) {
	l.logger.WithLevel(l.level).Dict(l.key(ev.Run), l.describe(ev.Run)).Msg("has finished running")
}

func (l *PoolLogger) key(run core.Run) string {
	if _, ok := run.(partitioned); ok {
		return "pool"
	}
	return "run"
}

// describe renders the state of run, plus partition sizes for pools.
func (l *PoolLogger) describe(run core.Run) *zerolog.Event {
	d := zerolog.Dict()
	if run == nil {
		return d
	}
	d = d.Str("type", fmt.Sprintf("%T", run)).
		Str("id", run.ID()).
		Str("name", core.RunName(run)).
		Str("tags", run.Tags().String()).
		Bool("has_started", run.HasStarted()).
		Bool("is_running", run.IsRunning()).
		Bool("is_successful", run.IsSuccessful()).
		Dur("duration", run.Duration()).
		Float64("priority", run.Priority())
	if p := run.Progress(); p != nil {
		d = d.Float64("progress", p.Fraction)
	}
	if p, ok := run.(partitioned); ok {
		d = d.Int("num_waiting", len(p.Waiting())).
			Int("num_running", len(p.Running())).
			Int("num_finished", len(p.Finished()))
	}
	return d
}
