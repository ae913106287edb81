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

	root := newRootCommand(defaultCommandWiring(os.Stdout, os.Stderr))
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
