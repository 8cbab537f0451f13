// Command process-pool runs the jobs of a YAML job file through a bounded,
// priority-ordered process pool.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errPoolFailed) {
			fmt.Fprintln(os.Stderr, "fatal:", err)
		}
		cancel()
		os.Exit(1)
	}
}
