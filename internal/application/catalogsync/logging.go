package catalogsync

import (
	"context"

	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/infrastructure/logger"
)

// scoped binds the request, run and trace ids carried by ctx to l
func scoped(ctx context.Context, l *zap.Logger) *zap.Logger {
	fields := make([]zap.Field, 0, 3)
	if id := logger.GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := logger.GetRunID(ctx); id != "" {
		fields = append(fields, zap.String("run_id", id))
	}
	if id := logger.GetTraceID(ctx); id != "" {
		fields = append(fields, zap.String("trace_id", id))
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

func nopIfNil(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
