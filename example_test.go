package processpool_test

import (
	"context"
	"errors"
	"fmt"

	processpool "github.com/Swind/go-process-pool"
)

// ExampleNew demonstrates priority ordering with a single import.
func ExampleNew() {
	pool, err := processpool.New(1)
	if err != nil {
		panic(err)
	}

	for _, job := range []struct {
		name     string
		priority float64
	}{
		{"low", 0.5},
		{"high", 3},
		{"medium", 1},
	} {
		name := job.name
		run := processpool.NewFuncRun(func() error {
			fmt.Println(name)
			return nil
		}, processpool.WithPriority(job.priority))
		if err := pool.Add(run); err != nil {
			panic(err)
		}
	}

	fmt.Println("successful:", pool.Run(0))

	// Output:
	// high
	// medium
	// low
	// successful: true
}

// ExamplePool_Add demonstrates nesting a pool inside another pool.
func ExamplePool_Add() {
	inner, _ := processpool.New(processpool.Unbounded,
		func() error { fmt.Println("inner"); return nil },
	)
	outer, _ := processpool.New(1, inner)

	_ = inner.Add(processpool.NewFuncRun(func() error {
		fmt.Println("added later")
		return nil
	}, processpool.WithPriority(2)))

	outer.Run(0)
	fmt.Println(outer.Len(), "runs,", inner.IsSuccessful())

	// Output:
	// added later
	// inner
	// 2 runs, true
}

// ExampleRunAll demonstrates collecting failures.
func ExampleRunAll() {
	failures, err := processpool.RunAll(context.Background(), 2, 0,
		func() error { return nil },
		func() error { return errors.New("disk full") },
	)

	fmt.Println(err, failures)

	// Output:
	// <nil> [disk full]
}
