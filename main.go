package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lvcoi/ytmp4/internal/app"
	"github.com/lvcoi/ytmp4/internal/config"
	"github.com/lvcoi/ytmp4/internal/logging"
	"github.com/lvcoi/ytmp4/internal/watch"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(args) > 0 && args[0] == "watch" {
		return runWatch(ctx, args[1:])
	}
	if len(args) > 0 && args[0] == "serve" {
		args = args[1:]
	}
	return runServe(ctx, args)
}

func runServe(ctx context.Context, args []string) int {
	cfg, err := config.Load(args, os.LookupEnv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}

	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	svc, err := app.Build(cfg, logger)
	if err != nil {
		logger.Error("building service", "error", err)
		return exitFailure
	}
	if err := svc.Run(ctx); err != nil {
		logger.Error("service stopped", "error", err)
		return exitFailure
	}
	logger.Info("shutdown complete")
	return exitOK
}

func runWatch(ctx context.Context, args []string) int {
	opts, err := watch.ParseArgs(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}
	if err := watch.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailure
	}
	return exitOK
}
