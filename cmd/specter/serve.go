package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/eleven-am/specter/internal/api"
	"github.com/eleven-am/specter/internal/core"
	"github.com/eleven-am/specter/internal/domain"
	"github.com/lmittmann/tint"
)

func serve(args []string) error {
	var configPath, addr string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			v, err := flagValue(args, &i)
			if err != nil {
				return err
			}
			configPath = v
		case "--addr":
			v, err := flagValue(args, &i)
			if err != nil {
				return err
			}
			addr = v
		default:
			return fmt.Errorf("unknown arg: %s", args[i])
		}
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.HTTP.Addr = addr
	}
	cfg.Logger = newLogger(cfg.Logging, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := core.NewManager(cfg)
	defer manager.Close()

	if err := manager.Start(ctx); err != nil {
		return err
	}
	return api.NewServer(manager, cfg.HTTP, cfg.Logger).Start(ctx)
}

func loadConfig(path string) (*domain.Config, error) {
	if path != "" {
		return domain.LoadConfig(path)
	}
	return domain.LoadConfigFromEnv()
}

func newLogger(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts))
	case "console", "tint":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "2006-01-02 15:04:05.000Z07:00",
			NoColor:    !isTerminal(w),
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Value.Kind() == slog.KindAny {
					if _, ok := a.Value.Any().(error); ok {
						return tint.Attr(9, a)
					}
				}
				return a
			},
		}))
	default:
		return slog.New(slog.NewTextHandler(w, opts))
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
