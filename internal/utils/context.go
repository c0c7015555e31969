package utils

import (
	"context"
	"time"
)

type contextKey string

const ContextUserIDKey contextKey = "userID"

// SessionData is what the session gate needs to know about a session.
type SessionData struct {
	SessionID string
	UserID    string
	ExpiresAt time.Time
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextUserIDKey, userID)
}

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID := ctx.Value(ContextUserIDKey)
	userIDStr, ok := userID.(string)
	return userIDStr, ok && userIDStr != ""
}
