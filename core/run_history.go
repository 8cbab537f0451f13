package core

import (
	"reflect"
	"runtime"
	"strings"
	"time"
)

type runHistory struct {
	items []RunRecord
	head  int
	count int
}

func newRunHistory(capacity int) runHistory {
	if capacity < 1 {
		capacity = DefaultHistorySize
	}
	return runHistory{items: make([]RunRecord, capacity)}
}

func (h *runHistory) Add(record RunRecord) {
	if len(h.items) == 0 {
		return
	}

	h.items[h.head] = record
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

// Recent returns up to limit records, newest first. limit <= 0 returns everything kept.
func (h *runHistory) Recent(limit int) []RunRecord {
	if h.count == 0 {
		return nil
	}

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]RunRecord, 0, limit)
	for i := range limit {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

func (h *runHistory) Last() (RunRecord, bool) {
	if h.count == 0 {
		return RunRecord{}, false
	}

	idx := (h.head - 1 + len(h.items)) % len(h.items)
	return h.items[idx], true
}

func recordRun(run Run) RunRecord {
	rec := RunRecord{
		RunID:      run.ID(),
		Name:       RunName(run),
		Tags:       run.Tags(),
		Priority:   run.Priority(),
		Duration:   run.Duration(),
		Successful: run.IsSuccessful(),
		Errors:     run.Errors(),
	}
	if ts, ok := run.(interface {
		StartedAt() time.Time
		FinishedAt() time.Time
	}); ok {
		rec.StartedAt = ts.StartedAt()
		rec.FinishedAt = ts.FinishedAt()
	}
	return rec
}

// RunName returns the name of run if it has one, otherwise its ID.
func RunName(run Run) string {
	if named, ok := run.(interface{ Name() string }); ok && named.Name() != "" {
		return named.Name()
	}
	return run.ID()
}

func resolveFuncName(fn any, explicit string) string {
	if explicit != "" {
		return explicit
	}

	if fn == nil {
		return "anonymous"
	}

	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "anonymous"
	}

	pc := v.Pointer()
	if pc == 0 {
		return "anonymous"
	}

	f := runtime.FuncForPC(pc)
	if f == nil {
		return "anonymous"
	}

	name := f.Name()
	if name == "" {
		return "anonymous"
	}
	// Keep the package-qualified symbol, drop the import path.
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
