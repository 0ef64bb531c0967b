package warehouse

import (
	"context"

	"github.com/ghimmohmoh/ghimmohmoh/internal/tableref"
)

// Column is one row of the information schema, in ordinal order.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// SampleRow is one TITLE/CATEGORY pair returned by a metadata query.
type SampleRow struct {
	Title    string `json:"title"`
	Category string `json:"category"`
}

type Source interface {
	Columns(ctx context.Context, table tableref.Locator) ([]Column, error)
	Samples(ctx context.Context, query string) ([]SampleRow, error)
}
