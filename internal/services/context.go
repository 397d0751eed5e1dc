package services

import "context"

type contextKey string

const (
	pluginKey    contextKey = "plugin"
	soundUIDKey  contextKey = "sound_uid"
	requestIDKey contextKey = "request_id"
)

// WithPlugin annotates context with the registry key of the running plugin.
func WithPlugin(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, pluginKey, key)
}

// PluginFromContext returns the plugin key if present.
func PluginFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(pluginKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithSoundUID annotates context with the identifier of the sound being handled.
func WithSoundUID(ctx context.Context, uid string) context.Context {
	if uid == "" {
		return ctx
	}
	return context.WithValue(ctx, soundUIDKey, uid)
}

// SoundUIDFromContext returns the sound identifier if present.
func SoundUIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(soundUIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
