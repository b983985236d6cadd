package statslog

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelStatsLogger wraps a tracer, turning each event into a span covering
// event.Duration (or a zero-length span for instantaneous events like
// task acceptance).
type OTelStatsLogger struct {
	tracer trace.Tracer
}

// NewOTelStatsLogger returns a logger that records spans via tracer.
func NewOTelStatsLogger(tracer trace.Tracer) *OTelStatsLogger {
	return &OTelStatsLogger{tracer: tracer}
}

// Log implements StatsLogger.
func (o *OTelStatsLogger) Log(event Event) error {
	end := time.Now()
	_, span := o.tracer.Start(context.Background(), event.Msg, trace.WithTimestamp(end.Add(-event.Duration)))
	defer span.End(trace.WithTimestamp(end))

	span.SetAttributes(
		attribute.Int("iteration", event.Iteration),
		attribute.String("tag", event.Tag),
		attribute.String("phase", event.Phase),
	)
	for k, v := range event.Meta {
		if s, ok := v.(string); ok {
			span.SetAttributes(attribute.String(k, s))
		}
	}
	if errMsg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errMsg)
	}
	return nil
}

// Close implements StatsLogger.
func (o *OTelStatsLogger) Close() error { return nil }
