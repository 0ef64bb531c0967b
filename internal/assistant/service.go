// Package assistant binds the configured table to the context cache, the
// prompt template and the optional archive.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ghimmohmoh/ghimmohmoh/internal/archive"
	"github.com/ghimmohmoh/ghimmohmoh/internal/observability"
	"github.com/ghimmohmoh/ghimmohmoh/internal/prompt"
	"github.com/ghimmohmoh/ghimmohmoh/internal/promptctx"
	"github.com/ghimmohmoh/ghimmohmoh/internal/tableref"
)

// ErrArchiveDisabled is returned by Archive when no archive is configured.
var ErrArchiveDisabled = errors.New("prompt archive is not configured")

type ContextCache interface {
	Get(ctx context.Context, req promptctx.Request) (string, error)
	Invalidate()
	Forget(req promptctx.Request)
	Len() int
}

type Config struct {
	Request      promptctx.Request
	Template     prompt.Template
	QueryTimeout time.Duration
}

type Service struct {
	request  promptctx.Request
	template prompt.Template
	timeout  time.Duration
	cache    ContextCache
	archive  *archive.Archive
	logger   *slog.Logger
}

// NewService wires a service; archive may be nil.
func NewService(cfg Config, cache ContextCache, archive *archive.Archive, logger *slog.Logger) (*Service, error) {
	if cache == nil {
		return nil, fmt.Errorf("context cache is required")
	}
	if cfg.Request.Table.IsZero() {
		return nil, fmt.Errorf("table is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Service{
		request:  cfg.Request,
		template: cfg.Template,
		timeout:  cfg.QueryTimeout,
		cache:    cache,
		archive:  archive,
		logger:   logger,
	}, nil
}

func (s *Service) Table() tableref.Locator {
	return s.request.Table
}

func (s *Service) ArchiveEnabled() bool {
	return s.archive != nil
}

// TableContext returns the context document, building it on a cache miss.
func (s *Service) TableContext(ctx context.Context) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	document, err := s.cache.Get(ctx, s.request)
	if err != nil {
		s.logger.ErrorContext(ctx, "table_context_failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("table", s.request.Table.String()),
			slog.String("class", promptctx.ErrorClass(err)),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	return document, nil
}

func (s *Service) SystemPrompt(ctx context.Context) (string, error) {
	document, err := s.TableContext(ctx)
	if err != nil {
		return "", err
	}
	systemPrompt := s.template.Assemble(document)
	observability.SetSystemPromptBytes(len(systemPrompt))
	return systemPrompt, nil
}

// Invalidate drops all cached context so the next call re-reads the
// warehouse, and reports how many documents were dropped.
func (s *Service) Invalidate() int {
	dropped := s.cache.Len()
	s.cache.Invalidate()
	s.logger.Info("context_cache_invalidated",
		slog.String("table", s.request.Table.String()),
		slog.Int("dropped", dropped),
	)
	return dropped
}

// Refresh rebuilds the table's context from the warehouse right away. Other
// cached documents are left alone.
func (s *Service) Refresh(ctx context.Context) (string, error) {
	s.cache.Forget(s.request)
	document, err := s.TableContext(ctx)
	if err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "context_refreshed", slog.String("table", s.request.Table.String()))
	return document, nil
}

// Archive renders the current system prompt and stores it.
func (s *Service) Archive(ctx context.Context) (archive.Entry, error) {
	if s.archive == nil {
		return archive.Entry{}, ErrArchiveDisabled
	}
	systemPrompt, err := s.SystemPrompt(ctx)
	if err != nil {
		return archive.Entry{}, err
	}
	entry, err := s.archive.Save(ctx, s.request.Table, systemPrompt)
	if err != nil {
		return archive.Entry{}, err
	}
	observability.IncrementPromptArchived()
	s.logger.InfoContext(ctx, "prompt_archived",
		slog.String("table", s.request.Table.String()),
		slog.String("key", entry.Key),
		slog.String("digest", entry.Digest),
	)
	return entry, nil
}

// LatestArchived returns the newest archived prompt for the table.
func (s *Service) LatestArchived(ctx context.Context) (archive.Entry, string, error) {
	if s.archive == nil {
		return archive.Entry{}, "", ErrArchiveDisabled
	}
	return s.archive.Latest(ctx, s.request.Table)
}

// Warm builds the context once so startup fails on a broken warehouse.
func (s *Service) Warm(ctx context.Context) error {
	start := time.Now()
	if _, err := s.TableContext(ctx); err != nil {
		return fmt.Errorf("warm context for %s: %w", s.request.Table, err)
	}
	s.logger.InfoContext(ctx, "context_warmed",
		slog.String("table", s.request.Table.String()),
		slog.String("duration", time.Since(start).String()),
	)
	return nil
}
