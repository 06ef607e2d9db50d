// Package logging собирает *slog.Logger для бинарников: вывод в stderr и,
// при необходимости, в журнал на диске, открытый только на дозапись.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/example/ingest/internal/config"
)

// New создает логгер по настройкам. Возвращаемый closer закрывает файл журнала;
// если файл не задан, closer ничего не делает.
func New(cfg config.LogConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	var out io.Writer = stderr
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", cfg.File, err)
		}
		out = io.MultiWriter(stderr, f)
		closer = f
	}

	// Debug всегда пропускается slog; детализацию ограничивает LogLevel библиотеки
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if cfg.Level == "" || cfg.Level == "info" || cfg.Level == "0" {
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
