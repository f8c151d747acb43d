package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// New returns a JSON logger inside Kubernetes and for the dev/prod environments,
// and a colored text logger everywhere else. Records carry trace_id/span_id when
// the context holds a valid span.
func New(env string) *slog.Logger {
	return slog.New(newTraceContextHandler(newHandler(os.Stdout, env)))
}

func NewWithServiceContext(serviceName, version, env string) *slog.Logger {
	return New(env).With(
		slog.String("service", serviceName),
		slog.String("version", version),
		slog.String("environment", env),
	)
}

func newHandler(w io.Writer, env string) slog.Handler {
	_, inK8s := os.LookupEnv("KUBERNETES_SERVICE_HOST")
	if inK8s || env == "prod" || env == "dev" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     slog.LevelInfo,
			AddSource: true,
		})
	}
	return newColorTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
}

// colorTextHandler paints ERROR lines red. Coloring happens at the writer so
// the text handler never sees (and quotes) the escape codes.
type colorTextHandler struct {
	plain slog.Handler
	red   slog.Handler
}

func newColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *colorTextHandler {
	return &colorTextHandler{
		plain: slog.NewTextHandler(w, opts),
		red:   slog.NewTextHandler(&colorWriter{w: w, color: colorRed}, opts),
	}
}

func (h *colorTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.plain.Enabled(ctx, level)
}

func (h *colorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return h.red.Handle(ctx, r)
	}
	return h.plain.Handle(ctx, r)
}

func (h *colorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorTextHandler{plain: h.plain.WithAttrs(attrs), red: h.red.WithAttrs(attrs)}
}

func (h *colorTextHandler) WithGroup(name string) slog.Handler {
	return &colorTextHandler{plain: h.plain.WithGroup(name), red: h.red.WithGroup(name)}
}

const (
	colorRed   = "\x1b[31m"
	colorReset = "\x1b[0m"
)

// colorWriter wraps each record (one Write per record) in an ANSI color,
// keeping the trailing newline outside the escape sequence.
type colorWriter struct {
	w     io.Writer
	color string
}

func (c *colorWriter) Write(p []byte) (int, error) {
	line := bytes.TrimSuffix(p, []byte("\n"))
	buf := make([]byte, 0, len(p)+len(c.color)+len(colorReset))
	buf = append(buf, c.color...)
	buf = append(buf, line...)
	buf = append(buf, colorReset...)
	if len(line) < len(p) {
		buf = append(buf, '\n')
	}
	if _, err := c.w.Write(buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

type traceContextHandler struct {
	handler slog.Handler
}

func newTraceContextHandler(h slog.Handler) *traceContextHandler {
	return &traceContextHandler{handler: h}
}

func (h *traceContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *traceContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return h.handler.Handle(ctx, r)
}

func (h *traceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceContextHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *traceContextHandler) WithGroup(name string) slog.Handler {
	return &traceContextHandler{handler: h.handler.WithGroup(name)}
}
