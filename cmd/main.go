package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	app "github.com/okian/physalign/internal/app"
	"github.com/okian/physalign/internal/config"
	"github.com/okian/physalign/pkg/logger"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run performs one alignment pass and returns the process exit code.
func run(ctx context.Context, stdout, stderr io.Writer) int {
	// Logs go to stderr so the report on stdout stays readable.
	if err := logger.InitWriter(stderr); err != nil {
		_, _ = io.WriteString(stderr, "failed to initialize logging: "+err.Error()+"\n")
		return exitFailed
	}
	defer func() { _ = logger.Sync() }()

	loggerInstance := logger.Get()

	// Load configuration (.env -> defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		_, _ = io.WriteString(stderr, "failed to load config: "+err.Error()+"\n")
		return exitConfig
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := app.New(cfg,
		app.WithLogger(loggerInstance),
		app.WithReportWriter(stdout),
	)
	if _, err := svc.Run(ctx); err != nil {
		loggerInstance.Error(ctx, "alignment run failed", logger.Error(err))
		return exitFailed
	}
	return exitOK
}
