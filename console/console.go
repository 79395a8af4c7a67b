// Package console is the diagnostic sink of the state core. It is purely
// observational: nothing logged here changes control flow.
package console

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "github.com/delaneyj/statesync"

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
}

// SetLogger replaces the sink. A nil logger discards everything.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(discardHandler{})
	}
	logger.Store(l)
}

func Logger() *slog.Logger {
	return logger.Load()
}

func Log(msg string, args ...any) {
	logger.Load().Info(msg, args...)
}

func Debug(msg string, args ...any) {
	logger.Load().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	logger.Load().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	logger.Load().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	logger.Load().Error(msg, args...)
}

// Trace runs fn inside a span named name. Errors returned by fn are recorded
// on the span and passed through.
func Trace(ctx context.Context, name string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
