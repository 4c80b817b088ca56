package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelget/rget/cmd"
	"github.com/modelget/rget/pkg/logging"
)

func main() {
	logging.SetupLogger()
	rootCMD := cmd.GetRootCommand()

	// Ctrl-C stops the transfer at the next chunk and leaves the partial file
	// for the next run to resume.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCMD.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
