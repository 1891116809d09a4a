package cli

import (
	"context"
	"os"
	"os/signal"
)

// SignalCtx returns a context that's cancelled when any of the given signals are received.
// A second signal exits the process with a non-zero exit code.
func SignalCtx(parent context.Context, signals ...os.Signal) context.Context {
	if len(signals) == 0 {
		panic("no signals passed to SignalCtx")
	}
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, signals...)
	go func() {
		defer cancel()
		select {
		case <-sigs:
		case <-ctx.Done():
			signal.Stop(sigs)
			return
		}
		cancel()
		<-sigs
		os.Exit(1)
	}()
	return ctx
}
