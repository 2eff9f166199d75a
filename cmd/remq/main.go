// Command remq is a command-line client for the REM query API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Healer-AI/p8fs-sub000/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
