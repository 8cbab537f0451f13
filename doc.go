// Package processpool runs external processes and Go callbacks through a
// bounded, priority-ordered pool.
//
// A Pool holds runs in three partitions: waiting, running and finished.
// Waiting runs are promoted highest priority first, ties in admission order,
// while fewer than MaxSimultaneous runs are running. Runs report their
// lifecycle through synchronous events (started, updated, successful, failed,
// completed) which the pool uses to move them between partitions, collect
// their failures and finish itself once everything has finished.
//
// # Quick Start
//
// Create a pool limited to two simultaneous runs and run it to completion:
//
//	pool, err := processpool.New(2,
//		exec.Command("make", "lint"),
//		exec.Command("make", "test"),
//		func() error { return generateDocs() },
//	)
//	if err != nil {
//		return err
//	}
//	if !pool.Run(processpool.DefaultCheckInterval) {
//		for _, err := range pool.Errors() {
//			fmt.Println(err)
//		}
//	}
//
// # Key Concepts
//
// Run: a unit of work with a monotonic lifecycle. ProcessRun wraps an
// *exec.Cmd and finishes when Poll sees the process exit; CallbackRun runs a
// function synchronously inside Start.
//
// Priority: a float64, higher runs sooner. Changing the priority of a waiting
// run reorders the pool's queue; changing it after the run started has no
// effect on scheduling.
//
// Nested pools: adding a pool to another pool adds its runs instead. Runs
// added to the inner pool later are followed automatically.
//
// # Concurrency
//
// A Pool is driven by the goroutine that calls Add, Start, Poll or Run, and
// every event listener runs on that goroutine. The pool is not safe for
// concurrent use. The only goroutines started by the module wait on process
// exits and never touch pool state.
//
// # Example
//
//	import (
//		"os/exec"
//
//		processpool "github.com/Swind/go-process-pool"
//	)
//
//	func main() {
//		pool, _ := processpool.New(1)
//		_ = pool.Add(exec.Command("sleep", "1"), processpool.T("kind", "slow"))
//		_ = pool.Add(processpool.NewProcessRun(exec.Command("echo", "first"), processpool.WithPriority(5)))
//		pool.Run(processpool.DefaultCheckInterval)
//	}
//
// For more details, see https://github.com/Swind/go-process-pool
package processpool
