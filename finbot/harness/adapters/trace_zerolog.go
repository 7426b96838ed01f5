package adapters

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
)

// ZerologTracer implements the Tracer port as structured log spans.
type ZerologTracer struct {
	logger zerolog.Logger
}

type spanLoggerKey struct{}

var _ harnessports.Tracer = (*ZerologTracer)(nil)

func NewZerologTracer(logger zerolog.Logger) *ZerologTracer {
	return &ZerologTracer{logger: logger}
}

// StartSpan logs span start and returns a finish func that logs duration and
// outcome. The span logger rides the context so Event output nests under it.
func (t *ZerologTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	spanLogger := t.logger.With().Str("span", name).Fields(attrs).Logger()
	ctx = context.WithValue(ctx, spanLoggerKey{}, spanLogger)

	start := time.Now()
	spanLogger.Debug().Msg("span start")

	finish := func(err error) {
		event := spanLogger.Debug()
		if err != nil {
			event = spanLogger.Error().Err(err)
		}
		event.Dur("duration", time.Since(start)).Msg("span end")
	}
	return ctx, finish
}

// Event logs a point-in-time event inside the current span, if any.
func (t *ZerologTracer) Event(ctx context.Context, name string, attrs map[string]any) {
	logger := t.logger
	if spanLogger, ok := ctx.Value(spanLoggerKey{}).(zerolog.Logger); ok {
		logger = spanLogger
	}
	logger.Debug().Fields(attrs).Str("event", name).Msg("trace event")
}
