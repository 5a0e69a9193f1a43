package main

import (
	"context"
	"os"
	"os/signal"
)

// The context is cancelled on the first interrupt. In flight
// downloads stop and no partial collector is left behind.
func install_sig_handler() (context.Context, context.CancelFunc) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		select {
		case <-quit:
			cancel()

		case <-ctx.Done():
			return
		}
	}()

	return ctx, cancel
}
