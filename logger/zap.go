package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZapLogFunc returns a LogFunc that forwards entries to a zap logger.
// Trace entries are written at zap's debug level.
func NewZapLogFunc(z *zap.Logger) LogFunc {
	if z == nil {
		return NoopLogFunc
	}

	return func(payload LogPayload) {
		level := ZapLevel(payload.Level)
		ce := z.Check(level, payload.Message)
		if ce == nil {
			return
		}

		fields := make([]zap.Field, 0, len(payload.Fields)+1)
		for k, v := range payload.Fields {
			fields = append(fields, zap.Any(k, v))
		}

		if payload.Error != nil {
			fields = append(fields, zap.Error(payload.Error))
		}

		ce.Write(fields...)
	}
}

// ZapLevel maps a Level to the closest zap level
func ZapLevel(level Level) zapcore.Level {
	switch level {
	case ErrorLevel:
		return zapcore.ErrorLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case InfoLevel:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
