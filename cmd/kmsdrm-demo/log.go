package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/rs/zerolog"
)

// zerologHandler adapts slog's Handler interface onto a zerolog.Logger, so
// pkg/kmsdrm's internal slog.Logger and this CLI's own zerolog output share
// one console writer and one line format instead of interleaving two
// independent logging styles.
type zerologHandler struct {
	log  zerolog.Logger
	attr []slog.Attr
}

func newZerologHandler(jsonOutput bool) *zerologHandler {
	var l zerolog.Logger
	if jsonOutput {
		l = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	}
	return &zerologHandler{log: l}
}

func (h *zerologHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelDebug
}

func (h *zerologHandler) Handle(_ context.Context, r slog.Record) error {
	var ev *zerolog.Event
	switch {
	case r.Level >= slog.LevelError:
		ev = h.log.Error()
	case r.Level >= slog.LevelWarn:
		ev = h.log.Warn()
	case r.Level >= slog.LevelInfo:
		ev = h.log.Info()
	default:
		ev = h.log.Debug()
	}
	for _, a := range h.attr {
		ev = ev.Interface(a.Key, a.Value.Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		ev = ev.Interface(a.Key, a.Value.Any())
		return true
	})
	ev.Msg(r.Message)
	return nil
}

func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := &zerologHandler{log: h.log, attr: append(append([]slog.Attr(nil), h.attr...), attrs...)}
	return out
}

func (h *zerologHandler) WithGroup(name string) slog.Handler {
	return h // groups aren't modeled; attrs stay flat, matching the console writer's one-line-per-event format
}

func newLogger(cfg CLIConfig) *slog.Logger {
	return slog.New(newZerologHandler(cfg.LogJSON))
}
