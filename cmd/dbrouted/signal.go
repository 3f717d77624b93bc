package main

import (
	"context"
	"os"
)

// signalContext returns a context cancelled the moment a signal arrives
// on sigCh, mirroring the select-on-signal-channel shutdown shape used
// throughout the teacher's cmd/warren subcommands.
func signalContext(sigCh <-chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
