// Package context carries request scoped values through context.Context
package context

import "context"

type key int

const (
	requestIDKey key = iota
	projectIDKey
	userIDKey
)

func value(ctx context.Context, k key) string {
	v, _ := ctx.Value(k).(string)
	return v
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return value(ctx, requestIDKey)
}

// SetProjectID scopes the request to a project's test case pool
func SetProjectID(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, projectIDKey, projectID)
}

// GetProjectID returns the project scope, or "" for unscoped requests
func GetProjectID(ctx context.Context) string {
	return value(ctx, projectIDKey)
}

// SetUserID records the reviewer or client acting on the request
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	return value(ctx, userIDKey)
}
