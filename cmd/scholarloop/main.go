package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ScholarLoop/internal/app"
	"ScholarLoop/internal/config"
	"ScholarLoop/internal/logging"
)

func main() {
	mode := flag.String("mode", "run", "run | status | report | override")
	note := flag.String("note", "", "operator note for override mode")
	strategy := flag.String("strategy", "", "optional strategy label for override mode")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "run":
		err = application.Run(ctx)
	case "status":
		err = application.Status(ctx)
	case "report":
		err = application.Report(ctx)
	case "override":
		err = application.Override(*note, *strategy)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}

	if err != nil {
		logger.Error("application stopped", "mode", *mode, "error", err)
		os.Exit(1)
	}
}
