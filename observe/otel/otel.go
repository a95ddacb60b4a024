// Package otel turns loop events into OpenTelemetry spans.
package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/AnkitD0811/cloud-security-scanner/observe"
)

const instrumentationName = "github.com/AnkitD0811/cloud-security-scanner/agent"

// Sink implements observe.Sink by emitting one span per event.
type Sink struct {
	tracer trace.Tracer
}

// NewSink falls back to a noop provider when tp is nil.
func NewSink(tp trace.TracerProvider) *Sink {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sink{tracer: tp.Tracer(instrumentationName)}
}

func (s *Sink) Emit(ctx context.Context, event observe.Event) error {
	event.Normalize()

	start := event.Timestamp
	if event.DurationMs > 0 {
		start = event.Timestamp.Add(-time.Duration(event.DurationMs) * time.Millisecond)
	}
	_, span := s.tracer.Start(context.WithoutCancel(ctx), spanNameFor(event), trace.WithTimestamp(start))

	attrs := []attribute.KeyValue{
		attribute.String("iacscan.event.kind", string(event.Kind)),
	}
	add := func(key, value string) {
		if value != "" {
			attrs = append(attrs, attribute.String(key, value))
		}
	}
	add("iacscan.run.id", event.RunID)
	add("iacscan.input", event.Input)
	add("iacscan.span.id", event.SpanID)
	add("iacscan.parent_span.id", event.ParentSpanID)
	add("iacscan.state", event.State)
	add("iacscan.provider", event.Provider)
	add("iacscan.tool.name", event.ToolName)
	add("iacscan.event.name", event.Name)
	add("iacscan.status", string(event.Status))
	if event.Message != "" {
		attrs = append(attrs, attribute.String("iacscan.message", truncate(event.Message, 1024)))
	}
	if event.DurationMs > 0 {
		attrs = append(attrs, attribute.Int64("iacscan.duration_ms", event.DurationMs))
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, attribute.String("iacscan.attr."+k, fmt.Sprintf("%v", v)))
	}
	span.SetAttributes(attrs...)

	switch event.Status {
	case observe.StatusFailed, observe.StatusDegraded:
		span.SetStatus(codes.Error, event.Error)
		if event.Error != "" {
			span.RecordError(errors.New(event.Error))
		}
	case observe.StatusCompleted:
		span.SetStatus(codes.Ok, "")
	}

	span.End(trace.WithTimestamp(event.Timestamp))
	return nil
}

func spanNameFor(event observe.Event) string {
	switch event.Kind {
	case observe.KindRun:
		return "iacscan.run"
	case observe.KindState:
		if event.State != "" {
			return "iacscan.state." + event.State
		}
		return "iacscan.state"
	case observe.KindOracle:
		if event.Provider != "" {
			return "iacscan.oracle." + event.Provider
		}
		return "iacscan.oracle"
	case observe.KindTool:
		if event.ToolName != "" {
			return "iacscan.tool." + event.ToolName
		}
		return "iacscan.tool"
	case observe.KindReport:
		return "iacscan.report"
	default:
		if event.Name != "" {
			return "iacscan." + event.Name
		}
		return "iacscan.event"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
