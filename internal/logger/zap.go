package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapSink writes events through a zap logger.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink builds a production JSON logger writing to path, or stdout
// when path is empty.
func NewZapSink(path string) (*ZapSink, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	if path != "" {
		cfg.OutputPaths = []string{path}
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building zap logger: %w", err)
	}
	return &ZapSink{log: l}, nil
}

// NewZapSinkFrom wraps an existing zap logger.
func NewZapSinkFrom(l *zap.Logger) *ZapSink {
	return &ZapSink{log: l}
}

// Emit writes e at the matching zap level.
func (s *ZapSink) Emit(e Event) {
	fields := make([]zap.Field, 0, len(e.Fields))
	for k, v := range e.Fields {
		fields = append(fields, zap.Any(k, v))
	}

	switch e.Level {
	case LevelDebug:
		s.log.Debug(e.Message, fields...)
	case LevelWarn:
		s.log.Warn(e.Message, fields...)
	case LevelError:
		s.log.Error(e.Message, fields...)
	default:
		s.log.Info(e.Message, fields...)
	}
}

// Sync flushes buffered output.
func (s *ZapSink) Sync() error {
	return s.log.Sync()
}
