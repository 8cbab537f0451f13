package processpool

import "github.com/Swind/go-process-pool/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the processpool package for most use cases.

// Run is the contract every schedulable unit of work satisfies
type Run = core.Run

// Collection is a run made of other runs, such as a Pool
type Collection = core.Collection

// Pool schedules runs with bounded concurrency and priority ordering
type Pool = core.Pool

// PoolConfig configures a Pool
type PoolConfig = core.PoolConfig

// ProcessRun wraps an *exec.Cmd
type ProcessRun = core.ProcessRun

// CallbackRun runs a Go function synchronously
type CallbackRun = core.CallbackRun

// Callback is the work of a CallbackRun
type Callback = core.Callback

// RunOption configures ProcessRun and CallbackRun construction
type RunOption = core.RunOption

type (
	Tag       = core.Tag
	Tags      = core.Tags
	Event     = core.Event
	EventKind = core.EventKind
	Listener  = core.Listener
	Progress  = core.Progress
	RunState  = core.RunState
	RunRecord = core.RunRecord
	PoolStats = core.PoolStats
)

// Event kinds
const (
	EventStarted         = core.EventStarted
	EventCompleted       = core.EventCompleted
	EventSuccessful      = core.EventSuccessful
	EventFailed          = core.EventFailed
	EventUpdated         = core.EventUpdated
	EventRunAdded        = core.EventRunAdded
	EventPriorityChanged = core.EventPriorityChanged
)

const (
	Unbounded            = core.Unbounded
	DefaultPriority      = core.DefaultPriority
	DefaultCheckInterval = core.DefaultCheckInterval
)

// Errors
var (
	ErrInvalidArgument  = core.ErrInvalidArgument
	ErrNotRunning       = core.ErrNotRunning
	ErrInvalidEventName = core.ErrInvalidEventName
)

// Typed failures captured by runs
type (
	ProcessFailedError = core.ProcessFailedError
	PanicError         = core.PanicError
)

// Convenience functions for constructing runs
var (
	T                  = core.T
	NewProcessRun      = core.NewProcessRun
	NewCallbackRun     = core.NewCallbackRun
	NewFuncRun         = core.NewFuncRun
	WithName           = core.WithName
	WithTags           = core.WithTags
	WithPriority       = core.WithPriority
	WithContext        = core.WithContext
	WithUpdateOnPoll   = core.WithUpdateOnPoll
	WithUpdateOnOutput = core.WithUpdateOnOutput
	DefaultPoolConfig  = core.DefaultPoolConfig
)

// NewPool creates a pool from cfg and admits items.
// This is re-exported for users who want full control over the configuration.
func NewPool(cfg PoolConfig, items ...any) (*Pool, error) {
	return core.NewPool(cfg, items...)
}
