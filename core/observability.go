package core

import "time"

// RunRecord captures a finished run as seen by its pool.
type RunRecord struct {
	RunID      string
	Name       string
	Tags       Tags
	Priority   float64
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Successful bool
	Errors     []error
}

// PoolStats represents runtime observability state for a pool.
type PoolStats struct {
	ID              string
	Name            string
	State           RunState
	MaxSimultaneous int
	Waiting         int
	Running         int
	Finished        int
	Total           int

	// Failed counts finished members that were not successful.
	Failed   int
	Errors   int
	Duration time.Duration
}
