package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charlesng35/cveintel/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
