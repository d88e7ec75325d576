// Command flowprep prepares network flow records for model training.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stderr)
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		a.logger.Error().Err(err).Msg("flowprep failed")
		stop()
		os.Exit(1)
	}
}
