package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghimmohmoh/ghimmohmoh/internal/archive"
	"github.com/ghimmohmoh/ghimmohmoh/internal/auth"
	"github.com/ghimmohmoh/ghimmohmoh/internal/config"
	"github.com/ghimmohmoh/ghimmohmoh/internal/observability"
	"github.com/ghimmohmoh/ghimmohmoh/internal/tableref"
)

type ReadinessCheck func(ctx context.Context) error

// PromptService is the slice of assistant.Service the handlers need.
type PromptService interface {
	Table() tableref.Locator
	SystemPrompt(ctx context.Context) (string, error)
	TableContext(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
	Invalidate() int
	ArchiveEnabled() bool
	Archive(ctx context.Context) (archive.Entry, error)
	LatestArchived(ctx context.Context) (archive.Entry, string, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Prompts           PromptService
	AssistantName     string
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	routes := map[string]protectedRoute{
		"GET /v1/prompt":                {auth.RolePromptReader, handlePrompt},
		"GET /v1/prompt/context":        {auth.RolePromptReader, handleContext},
		"POST /v1/prompt/refresh":       {auth.RolePromptAdmin, handleRefresh},
		"POST /v1/prompt/invalidate":    {auth.RolePromptAdmin, handleInvalidate},
		"POST /v1/prompt/archive":       {auth.RolePromptAdmin, handleArchive},
		"GET /v1/prompt/archive/latest": {auth.RolePromptReader, handleLatestArchived},
		"GET /{$}":                      {auth.RolePromptReader, handleViewer},
	}

	protected := http.NewServeMux()
	for pattern, route := range routes {
		handle := route.handle
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handle(deps, w, r) })
		protected.Handle(pattern, auth.RequireRole(deps.Logger, route.role)(handler))
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for pattern := range routes {
		mux.Handle(pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

type protectedRoute struct {
	role   string
	handle func(deps Dependencies, w http.ResponseWriter, r *http.Request)
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
