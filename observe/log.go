package observe

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogSink writes events as structured log lines. Degraded and failed events
// are warnings; everything else is debug.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, event Event) error {
	level := zapcore.DebugLevel
	if event.Troubled() {
		level = zapcore.WarnLevel
	}
	ce := s.logger.Check(level, "agent event")
	if ce == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("kind", string(event.Kind)),
		zap.String("name", event.Name),
		zap.String("status", string(event.Status)),
	}
	if event.RunID != "" {
		fields = append(fields, zap.String("run_id", event.RunID))
	}
	if event.Input != "" {
		fields = append(fields, zap.String("input", event.Input))
	}
	if event.State != "" {
		fields = append(fields, zap.String("state", event.State))
	}
	if event.ToolName != "" {
		fields = append(fields, zap.String("tool", event.ToolName))
	}
	if event.Message != "" {
		fields = append(fields, zap.String("message", event.Message))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	if event.DurationMs > 0 {
		fields = append(fields, zap.Int64("duration_ms", event.DurationMs))
	}
	for k, v := range event.Attributes {
		if k == "eventType" {
			continue
		}
		fields = append(fields, zap.String("attr."+k, fmt.Sprint(v)))
	}
	ce.Write(fields...)
	return nil
}
