// Command polydesk is the trading desk client for the prediction-market
// backend. It loads configuration, validates it, sets up signal handling and
// runs the requested command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/polydesk/internal/app"
	"github.com/alanyoungcy/polydesk/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: polydesk [-config path] <command> [flags]")
		flag.PrintDefaults()
	}
	flag.Parse()

	// Logs go to stderr so command output on stdout stays clean.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Debug("configuration loaded", slog.Any("config", config.RedactedConfig(cfg)))

	application := app.New(cfg, logger, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = application.Run(ctx, flag.Args())
	application.Close()
	stop()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		logger.Info("polydesk interrupted")
	case errors.Is(err, flag.ErrHelp):
	case errors.Is(err, app.ErrUsage):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	default:
		logger.Debug("command failed", slog.String("error", err.Error()))
		fmt.Fprintln(os.Stderr, app.Describe(err))
		os.Exit(1)
	}
}
