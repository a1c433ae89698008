package main

import (
	"context"
	"log/slog"

	"tally/core/events"
)

// logEmitter writes every committed event to the debug log.
type logEmitter struct {
	logger *slog.Logger
}

func newLogEmitter(logger *slog.Logger) logEmitter {
	return logEmitter{logger: logger}
}

func (e logEmitter) Emit(evt events.Event) {
	if evt == nil || !e.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	attrs := []any{slog.String("type", evt.EventType())}
	if wire, ok := evt.(events.WireEvent); ok && wire.Event() != nil {
		for key, value := range wire.Event().Attributes {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	e.logger.Debug("event committed", attrs...)
}
