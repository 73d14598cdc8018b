package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SignalContext returns a context cancelled on the first SIGINT or
// SIGTERM. A second signal calls force, if non-nil. stop releases the
// signal handler.
func SignalContext(parent context.Context, force func()) (ctx context.Context, stop func()) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return watchSignals(parent, ch, force, func() { signal.Stop(ch) })
}

func watchSignals(parent context.Context, ch <-chan os.Signal, force func(), release func()) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		select {
		case <-ch:
			cancel()
		case <-done:
			return
		}
		select {
		case <-ch:
			if force != nil {
				force()
			}
		case <-done:
		}
	}()

	var stopped bool
	return ctx, func() {
		if stopped {
			return
		}
		stopped = true
		release()
		close(done)
		cancel()
	}
}
