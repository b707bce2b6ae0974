package main

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// slogBridge implements slog.Handler over zerolog, the same trick
// cartographus's internal/logging package uses so sutureslog (which
// wants an *slog.Logger) can still end up writing through zerolog.
type slogBridge struct {
	logger zerolog.Logger
	attrs  []slog.Attr
}

func newSlogBridge(logger zerolog.Logger) *slog.Logger {
	return slog.New(&slogBridge{logger: logger})
}

func (h *slogBridge) Enabled(context.Context, slog.Level) bool { return true }

func (h *slogBridge) Handle(_ context.Context, record slog.Record) error {
	var event *zerolog.Event
	switch {
	case record.Level >= slog.LevelError:
		event = h.logger.Error()
	case record.Level >= slog.LevelWarn:
		event = h.logger.Warn()
	case record.Level >= slog.LevelInfo:
		event = h.logger.Info()
	default:
		event = h.logger.Debug()
	}
	for _, attr := range h.attrs {
		event = event.Interface(attr.Key, attr.Value.Any())
	}
	record.Attrs(func(attr slog.Attr) bool {
		event = event.Interface(attr.Key, attr.Value.Any())
		return true
	})
	event.Msg(record.Message)
	return nil
}

func (h *slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &slogBridge{logger: h.logger, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *slogBridge) WithGroup(string) slog.Handler { return h }
