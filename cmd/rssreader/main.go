package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Liyracat/tool-rss-reader/internal/app"
	"github.com/Liyracat/tool-rss-reader/internal/config"
	"github.com/Liyracat/tool-rss-reader/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("application start failed", "error", err)
		os.Exit(1)
	}
	code := 0
	if cfg.Scheduler.Enabled {
		code = application.RunScheduled(ctx)
	} else {
		code = application.RunOnce(ctx)
	}

	stop()
	if err := application.Close(); err != nil {
		logger.Error("close failed", "error", err)
	}
	os.Exit(code)
}
