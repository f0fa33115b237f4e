// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	requestIDKey     ctxKey = "request_id"
	playSessionIDKey ctxKey = "play_session_id"
	itemIDKey        ctxKey = "item_id"
)

// ContextWithRequestID stores the provided request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithPlaySession stores the server play session ID in the context.
func ContextWithPlaySession(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, playSessionIDKey, id)
}

// ContextWithItemID stores the item being played in the context.
func ContextWithItemID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, itemIDKey, id)
}

// RequestIDFromContext extracts the request ID from context if present.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// PlaySessionFromContext extracts the play session ID from context if present.
func PlaySessionFromContext(ctx context.Context) string {
	return stringValue(ctx, playSessionIDKey)
}

// ItemIDFromContext extracts the item ID from context if present.
func ItemIDFromContext(ctx context.Context) string {
	return stringValue(ctx, itemIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithContext returns a logger enriched with identifiers stored in ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	if v := RequestIDFromContext(ctx); v != "" {
		builder = builder.Str(FieldRequestID, v)
	}
	if v := PlaySessionFromContext(ctx); v != "" {
		builder = builder.Str(FieldPlaySessionID, v)
	}
	if v := ItemIDFromContext(ctx); v != "" {
		builder = builder.Str(FieldItemID, v)
	}
	return builder.Logger()
}

// FromContext returns a logger derived from the base logger and enriched with context values.
func FromContext(ctx context.Context) *zerolog.Logger {
	l := WithContext(ctx, Base())
	return &l
}
