// Package promptctx builds the table context document that is embedded in the
// system prompt, and caches it per request.
package promptctx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ghimmohmoh/ghimmohmoh/internal/observability"
	"github.com/ghimmohmoh/ghimmohmoh/internal/tableref"
	"github.com/ghimmohmoh/ghimmohmoh/internal/warehouse"
)

// Request identifies one context document. It is also the cache key, so two
// requests build the same document exactly when they compare equal.
type Request struct {
	Table         tableref.Locator
	Description   string
	MetadataQuery string
}

type Builder struct {
	Source warehouse.Source
	Logger *slog.Logger
}

func NewBuilder(source warehouse.Source, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Builder{Source: source, Logger: logger}
}

// Build queries the column metadata and, when req carries a metadata query,
// the sample rows. Either failure aborts the build.
func (b *Builder) Build(ctx context.Context, req Request) (string, error) {
	if b.Source == nil {
		return "", fmt.Errorf("warehouse source is required")
	}
	if req.Table.IsZero() {
		return "", fmt.Errorf("table is required")
	}

	start := time.Now()
	columns, err := b.Source.Columns(ctx, req.Table)
	if err != nil {
		observability.IncrementContextBuildError(ErrorClass(err))
		return "", fmt.Errorf("load columns of %s: %w", req.Table, err)
	}

	var samples []warehouse.SampleRow
	withSamples := strings.TrimSpace(req.MetadataQuery) != ""
	if withSamples {
		samples, err = b.Source.Samples(ctx, req.MetadataQuery)
		if err != nil {
			observability.IncrementContextBuildError(ErrorClass(err))
			return "", fmt.Errorf("load sample rows of %s: %w", req.Table, err)
		}
	}

	elapsed := time.Since(start)
	observability.ObserveContextBuild(elapsed)
	b.Logger.InfoContext(ctx, "context_built",
		slog.String("table", req.Table.String()),
		slog.Int("columns", len(columns)),
		slog.Int("samples", len(samples)),
		slog.Bool("metadata_query", withSamples),
		slog.String("duration", elapsed.String()),
	)
	return Render(req.Table, req.Description, columns, samples, withSamples), nil
}

// ErrorClass buckets a build failure for metrics and HTTP error mapping.
func ErrorClass(err error) string {
	var dataErr *warehouse.DataAccessError
	var mismatch *warehouse.SchemaMismatchError
	switch {
	case errors.As(err, &mismatch):
		return "schema_mismatch"
	case errors.As(err, &dataErr):
		return "data_access"
	default:
		return "other"
	}
}
