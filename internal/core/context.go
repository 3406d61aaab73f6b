package core

import "context"

type runIDKey struct{}
type sourceIDKey struct{}

func WithRunID(ctx context.Context, runID string) context.Context {
	if ctx == nil || runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey{}, runID)
}

func WithSourceID(ctx context.Context, sourceID string) context.Context {
	if ctx == nil || sourceID == "" {
		return ctx
	}
	return context.WithValue(ctx, sourceIDKey{}, sourceID)
}

func RunIDFromContext(ctx context.Context) string {
	return stringValue(ctx, runIDKey{})
}

func SourceIDFromContext(ctx context.Context) string {
	return stringValue(ctx, sourceIDKey{})
}

func stringValue(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
