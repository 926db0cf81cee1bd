package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

func setLogger(cfg LogConfig, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    max(cfg.MaxSizeMB, 1),
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}, &slog.HandlerOptions{
		Level: level,
	}))

	slog.SetDefault(logger)
	slog.Debug("DEBUGGING ENABLED")
	return nil
}
