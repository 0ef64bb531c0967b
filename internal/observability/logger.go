package observability

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/ghimmohmoh/ghimmohmoh/internal/config"
)

type ctxKey string

const (
	traceIDKey      ctxKey = "trace_id"
	requestAttrsKey ctxKey = "request_attrs"
)

// NewLogger builds the process logger. Every line carries the service, the
// profile and the table the prompt is generated for.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	options := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, options)
	} else {
		handler = slog.NewTextHandler(writer, options)
	}
	attrs := []any{
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
		slog.String("warehouse", cfg.Warehouse.Driver),
	}
	if !cfg.Prompt.Table.IsZero() {
		attrs = append(attrs, slog.String("table", cfg.Prompt.Table.String()))
	}
	return slog.New(handler).With(attrs...)
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

type requestAttrs struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

func contextWithRequestAttrs(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestAttrsKey, &requestAttrs{})
}

// AddRequestAttrs attaches attrs to the access log line of the request that
// owns ctx. It is a no-op outside TraceMiddleware.
func AddRequestAttrs(ctx context.Context, attrs ...slog.Attr) {
	holder, ok := ctx.Value(requestAttrsKey).(*requestAttrs)
	if !ok {
		return
	}
	holder.mu.Lock()
	defer holder.mu.Unlock()
	holder.attrs = append(holder.attrs, attrs...)
}

func requestAttrsFromContext(ctx context.Context) []slog.Attr {
	holder, ok := ctx.Value(requestAttrsKey).(*requestAttrs)
	if !ok {
		return nil
	}
	holder.mu.Lock()
	defer holder.mu.Unlock()
	return append([]slog.Attr(nil), holder.attrs...)
}
