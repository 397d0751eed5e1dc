package logging

import (
	"context"
	"log/slog"

	"bnpl/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldPlugin is the standardized structured logging key for plugin registry keys.
	FieldPlugin = "plugin"
	// FieldSoundUID is the standardized structured logging key for sound identifiers.
	FieldSoundUID = "sound_uid"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if key, ok := services.PluginFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPlugin, key))
	}
	if uid, ok := services.SoundUIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSoundUID, uid))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
