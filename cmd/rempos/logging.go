package main

import (
	"io"
	"time"

	"github.com/rs/zerolog"

	"rempos/internal/config"
)

// newLogger writes every event to out (human-readable or JSON per cfg) and,
// as JSON, to sink so /api/logs can serve it.
func newLogger(cfg config.LogConfig, out io.Writer, sink zerolog.LevelWriter) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	primary := out
	if cfg.Format != "json" {
		primary = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	w := zerolog.MultiLevelWriter(primary)
	if sink != nil {
		w = zerolog.MultiLevelWriter(primary, sink)
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
