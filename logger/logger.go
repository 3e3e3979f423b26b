package logger

import (
	"context"
	"io"
	"strings"

	"golang.org/x/exp/slog"
)

type contextKey string

const attrKey contextKey = "attrKey"

// ContextHandler wraps a slog.Handler and adds the attributes stored in the
// context by Ctx to every record.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{Handler: handler}
}

func (h ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if attrs, ok := ctx.Value(attrKey).([]slog.Attr); ok {
		record.AddAttrs(attrs...)
	}

	return h.Handler.Handle(ctx, record)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// Ctx returns a context carrying the given attributes in addition to the
// ones already present.
func Ctx(ctx context.Context, toAppend ...slog.Attr) context.Context {
	existing, _ := ctx.Value(attrKey).([]slog.Attr)
	attrs := make([]slog.Attr, 0, len(existing)+len(toAppend))
	attrs = append(attrs, existing...)
	attrs = append(attrs, toAppend...)

	return context.WithValue(ctx, attrKey, attrs)
}

// New builds the service logger. format is "json" or "text", level one of
// debug, info, warn or error.
func New(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}

	return slog.New(NewContextHandler(h))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
