package logging

import (
	"context"
)

type contextKey string

const (
	CycleIDKey     contextKey = "cycle_id"
	MessageUIDKey  contextKey = "uid"
	IdentityKeyKey contextKey = "identity_key"
	ServiceNameKey contextKey = "service_name"
)

func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, CycleIDKey, cycleID)
}

func WithMessageUID(ctx context.Context, uid uint32) context.Context {
	return context.WithValue(ctx, MessageUIDKey, uid)
}

func WithIdentityKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, IdentityKeyKey, key)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func GetCycleID(ctx context.Context) string {
	if cycleID, ok := ctx.Value(CycleIDKey).(string); ok {
		return cycleID
	}
	return ""
}

func GetMessageUID(ctx context.Context) (uint32, bool) {
	uid, ok := ctx.Value(MessageUIDKey).(uint32)
	return uid, ok
}

func GetIdentityKey(ctx context.Context) string {
	if key, ok := ctx.Value(IdentityKeyKey).(string); ok {
		return key
	}
	return ""
}

func GetServiceName(ctx context.Context) string {
	if serviceName, ok := ctx.Value(ServiceNameKey).(string); ok {
		return serviceName
	}
	return ""
}

// GetLogFields returns the key/value pairs carried by ctx in zap sugared form.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	if cycleID := GetCycleID(ctx); cycleID != "" {
		fields = append(fields, string(CycleIDKey), cycleID)
	}

	if uid, ok := GetMessageUID(ctx); ok {
		fields = append(fields, string(MessageUIDKey), uid)
	}

	if key := GetIdentityKey(ctx); key != "" {
		fields = append(fields, string(IdentityKeyKey), key)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, string(ServiceNameKey), serviceName)
	}

	return fields
}
