package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ghimmohmoh/ghimmohmoh/internal/api/uistatic"
	"github.com/ghimmohmoh/ghimmohmoh/internal/archive"
	"github.com/ghimmohmoh/ghimmohmoh/internal/assistant"
	"github.com/ghimmohmoh/ghimmohmoh/internal/observability"
	"github.com/ghimmohmoh/ghimmohmoh/internal/promptctx"
	"github.com/ghimmohmoh/ghimmohmoh/internal/warehouse"
)

func handlePrompt(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requirePrompts(deps, w, r) {
		return
	}
	systemPrompt, err := deps.Prompts.SystemPrompt(r.Context())
	if err != nil {
		writePromptError(r.Context(), w, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "", "json":
		writeJSON(w, http.StatusOK, map[string]any{
			"table":         deps.Prompts.Table().String(),
			"system_prompt": systemPrompt,
		})
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(systemPrompt))
	default:
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FORMAT", "format must be json or text", false, map[string]any{"format": r.URL.Query().Get("format")})
	}
}

func handleContext(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requirePrompts(deps, w, r) {
		return
	}
	document, err := deps.Prompts.TableContext(r.Context())
	if err != nil {
		writePromptError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"table":   deps.Prompts.Table().String(),
		"context": document,
	})
}

func handleInvalidate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requirePrompts(deps, w, r) {
		return
	}
	dropped := deps.Prompts.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{
		"table":       deps.Prompts.Table().String(),
		"invalidated": true,
		"dropped":     dropped,
	})
}

func handleRefresh(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requirePrompts(deps, w, r) {
		return
	}
	document, err := deps.Prompts.Refresh(r.Context())
	if err != nil {
		writePromptError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"table":   deps.Prompts.Table().String(),
		"context": document,
	})
}

func handleArchive(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requirePrompts(deps, w, r) {
		return
	}
	entry, err := deps.Prompts.Archive(r.Context())
	if err != nil {
		writePromptError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"table": deps.Prompts.Table().String(),
		"entry": entry,
	})
}

func handleLatestArchived(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requirePrompts(deps, w, r) {
		return
	}
	entry, body, err := deps.Prompts.LatestArchived(r.Context())
	if err != nil {
		writePromptError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"table":         deps.Prompts.Table().String(),
		"entry":         entry,
		"system_prompt": body,
	})
}

func handleViewer(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requirePrompts(deps, w, r) {
		return
	}
	systemPrompt, err := deps.Prompts.SystemPrompt(r.Context())
	if err != nil {
		writePromptError(r.Context(), w, err)
		return
	}
	name := deps.AssistantName
	if name == "" {
		name = "Ghimmohmoh"
	}
	if err := uistatic.Render(w, uistatic.Page{
		AssistantName: name,
		Table:         deps.Prompts.Table().String(),
		SystemPrompt:  systemPrompt,
	}); err != nil && deps.Logger != nil {
		deps.Logger.ErrorContext(r.Context(), "render viewer failed", slog.Any("error", err))
	}
}

func requirePrompts(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Prompts == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PROMPT_NOT_CONFIGURED", "prompt service is not configured", false, nil)
		return false
	}
	observability.AddRequestAttrs(r.Context(), slog.String("table", deps.Prompts.Table().String()))
	return true
}

func writePromptError(ctx context.Context, w http.ResponseWriter, err error) {
	var mismatch *warehouse.SchemaMismatchError
	var accessErr *warehouse.DataAccessError
	var (
		status    = http.StatusInternalServerError
		code      = "INTERNAL"
		message   = "failed to build system prompt"
		retryable = false
		extra     = map[string]any{"details": err.Error()}
	)
	switch {
	case errors.Is(err, assistant.ErrArchiveDisabled):
		status, code, message, extra = http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", err.Error(), nil
	case errors.Is(err, archive.ErrEmpty):
		status, code, message, extra = http.StatusNotFound, "ARCHIVE_EMPTY", err.Error(), nil
	case errors.Is(err, context.DeadlineExceeded):
		status, code, message, retryable = http.StatusGatewayTimeout, "WAREHOUSE_TIMEOUT", "warehouse query timed out", true
	case errors.As(err, &mismatch):
		code, message = "METADATA_SCHEMA_MISMATCH", err.Error()
		extra = map[string]any{"missing": mismatch.Missing, "got": mismatch.Got}
	case errors.As(err, &accessErr):
		status, code, message, retryable = http.StatusServiceUnavailable, "WAREHOUSE_UNAVAILABLE", "warehouse query failed", true
	}
	observability.AddRequestAttrs(ctx,
		slog.String("error_code", code),
		slog.String("error_class", promptctx.ErrorClass(err)),
	)
	writeError(ctx, w, status, code, message, retryable, extra)
}
