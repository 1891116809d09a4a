package main

import (
	"context"
	"errors"
	"os"
	"syscall"

	"github.com/saylorsolutions/patternbus/cli"
)

func main() {
	ctx := cli.SignalCtx(context.Background(), os.Interrupt, syscall.SIGTERM)
	set := newCommandSet(os.Stderr)
	if err := set.Exec(ctx, os.Args[1:]); err != nil {
		var usageErr *cli.UsageError
		if !errors.As(err, &usageErr) {
			set.Printer().Errorln(err)
		}
		os.Exit(1)
	}
}
