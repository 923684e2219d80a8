// Command campusctl is a terminal client for the campus attendance API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return newRootCommand().ExecuteContext(ctx)
}
