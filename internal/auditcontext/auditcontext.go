package auditcontext

import (
	"context"
	"strings"
)

type ctxKey int

const (
	keyRequestID ctxKey = iota
	keyIPAddress
	keyUserAgent
	keyActorType
	keyActorID
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, keyRequestID, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, keyRequestID)
}

func WithIPAddress(ctx context.Context, ip string) context.Context {
	return withString(ctx, keyIPAddress, ip)
}

func IPAddressFromContext(ctx context.Context) string {
	return stringFrom(ctx, keyIPAddress)
}

func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return withString(ctx, keyUserAgent, userAgent)
}

func UserAgentFromContext(ctx context.Context) string {
	return stringFrom(ctx, keyUserAgent)
}

// WithActor stores who performs the action. actorType is one of the audit
// actor types; actorID is the user id or a fixed name for system actors.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	ctx = withString(ctx, keyActorType, actorType)
	return withString(ctx, keyActorID, actorID)
}

func ActorFromContext(ctx context.Context) (string, string) {
	return stringFrom(ctx, keyActorType), stringFrom(ctx, keyActorID)
}

func withString(ctx context.Context, key ctxKey, value string) context.Context {
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
