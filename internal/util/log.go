package util

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const ctxKeyLogger contextKey = "logger"

// LogFromContext returns the request-scoped logger if one was attached,
// falling back to the global logger.
func LogFromContext(ctx context.Context) *zerolog.Logger {
	l, ok := ctx.Value(ctxKeyLogger).(*zerolog.Logger)
	if !ok || l == nil {
		return &log.Logger
	}
	return l
}

// WithLogger attaches a logger to the context.
func WithLogger(ctx context.Context, l *zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, l)
}

// LogFromEchoContext returns a logger carrying the request id of the current
// echo request.
func LogFromEchoContext(c echo.Context) *zerolog.Logger {
	rid := c.Response().Header().Get(echo.HeaderXRequestID)
	l := log.With().Str("req_id", rid).Logger()
	return &l
}
