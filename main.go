package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/phonepilot/cmd"
)

func main() {
	// A first Ctrl-C cancels the running task gracefully (cleanup still
	// runs); a second one kills the process.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
