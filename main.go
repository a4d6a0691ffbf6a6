package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bookforge-gateway/cmd"
	"bookforge-gateway/internal/errs"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "shutdown requested, exiting")
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates caller mistakes and unrecoverable outlines from other
// failures for scripts driving the CLI.
func exitCode(err error) int {
	switch errs.KindOf(err) {
	case errs.KindBadRequest:
		return 2
	case errs.KindTruncatedPayload, errs.KindMalformedPayload:
		return 3
	default:
		return 1
	}
}
