package observability

import (
	"log/slog"
	"sort"

	"dropchain/core/events"
	"dropchain/core/types"
)

// payloadEvent is implemented by the per-module event envelopes, which expose
// the raw typed payload alongside the event type.
type payloadEvent interface {
	events.Event
	Event() *types.Event
}

// LogEmitter renders every marketplace event as one structured, append-only
// JSON log record. Downstream consumers parse the attribute names verbatim.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter wraps the supplied logger; a nil logger falls back to the
// process default.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger.With(slog.String("component", "events"))}
}

// Emit implements events.Emitter.
func (l *LogEmitter) Emit(evt events.Event) {
	if l == nil || evt == nil {
		return
	}
	args := []any{slog.String("event", evt.EventType())}
	if payload, ok := evt.(payloadEvent); ok {
		if raw := payload.Event(); raw != nil {
			keys := make([]string, 0, len(raw.Attributes))
			for k := range raw.Attributes {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				args = append(args, slog.String(k, raw.Attributes[k]))
			}
		}
	}
	l.logger.Info("event emitted", args...)
}
