package main

import (
	"log/slog"
	"os"

	"github.com/kstaniek/go-cansock/internal/logging"
)

func setupLogger(format, level string) *slog.Logger {
	lvl, err := logging.ParseLevel(level)
	l := logging.New(format, lvl, os.Stderr).With("app", "cansockd")
	if err != nil {
		l.Warn("log_level_fallback", "error", err)
	}
	logging.Set(l)
	return l
}
