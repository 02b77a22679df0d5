package signalr

import (
	"context"
	"log/slog"
	"time"

	otellog "go.opentelemetry.io/otel/log"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// Direction tags a LogEntry as outbound (client to server) or inbound.
type Direction string

const (
	DirectionOutbound Direction = "out"
	DirectionInbound  Direction = "in"
)

// LogEntry is the struct form of one traffic event, passed to every
// attached Logger for: the negotiation frame, every outbound frame, every
// inbound frame (including ones dropped for lack of a matching id or
// handler), watchdog fires, and shutdown.
type LogEntry struct {
	Direction    Direction
	InvocationID string
	Method       string
	Elapsed      time.Duration
	Err          error
}

// Logger receives every LogEntry HubConnection emits. Implementations must
// not block for long and must not panic; HubConnection does not protect
// against either.
type Logger interface {
	Log(entry LogEntry)
}

// slogLogger adapts a *slog.Logger to Logger.
type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger returns a Logger backed by l.
func NewSlogLogger(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

func (s *slogLogger) Log(e LogEntry) {
	level := slog.LevelDebug
	if e.Err != nil {
		level = slog.LevelWarn
	}
	s.l.Log(context.Background(), level, "rpc event",
		"direction", string(e.Direction),
		"invocation_id", e.InvocationID,
		"method", e.Method,
		"elapsed", e.Elapsed,
		"error", e.Err,
	)
}

// NewOtelLogger returns a Logger that bridges to an OpenTelemetry
// LoggerProvider via otelslog, so traffic events flow into the same
// pipeline as the spans and metrics produced by the tracer/meter options.
func NewOtelLogger(provider otellog.LoggerProvider, name string) Logger {
	return NewSlogLogger(otelslog.NewLogger(name, otelslog.WithLoggerProvider(provider)))
}

// fanOutLog calls every logger in loggers with entry. Loggers are called
// synchronously and in order; a panicking logger is not recovered from
// here, callers invoking this from the receive path should not register
// loggers that can panic.
func fanOutLog(loggers []Logger, entry LogEntry) {
	for _, l := range loggers {
		l.Log(entry)
	}
}
