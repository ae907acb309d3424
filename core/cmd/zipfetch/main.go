package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"zipfetch/core/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
