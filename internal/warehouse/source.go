package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ghimmohmoh/ghimmohmoh/internal/tableref"
)

const DefaultSampleLimit = 100

type SQLSource struct {
	db          *sql.DB
	dialect     Dialect
	sampleLimit int
}

func NewSQLSource(db *sql.DB, dialect Dialect, sampleLimit int) *SQLSource {
	if sampleLimit <= 0 {
		sampleLimit = DefaultSampleLimit
	}
	return &SQLSource{db: db, dialect: dialect, sampleLimit: sampleLimit}
}

func (s *SQLSource) Dialect() Dialect {
	return s.dialect
}

func (s *SQLSource) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &DataAccessError{Op: "ping", Err: err}
	}
	return nil
}

func (s *SQLSource) Columns(ctx context.Context, table tableref.Locator) ([]Column, error) {
	query, args := s.dialect.ColumnsQuery(table)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &DataAccessError{Op: "list columns", Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns := make([]Column, 0)
	for rows.Next() {
		var column Column
		var dataType sql.NullString
		if err := rows.Scan(&column.Name, &dataType); err != nil {
			return nil, &DataAccessError{Op: "scan column", Err: err}
		}
		column.DataType = dataType.String
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, &DataAccessError{Op: "iterate columns", Err: err}
	}
	return columns, nil
}

// Samples runs query and reads at most the configured number of TITLE/CATEGORY
// rows. The result set is checked for both columns before any row is read.
func (s *SQLSource) Samples(ctx context.Context, query string) ([]SampleRow, error) {
	query = stripTrailingSemicolons(query)
	if query == "" {
		return nil, fmt.Errorf("metadata query is required")
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &DataAccessError{Op: "run metadata query", Err: err}
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, &DataAccessError{Op: "read metadata columns", Err: err}
	}
	titleIndex, categoryIndex := indexOf(names, TitleColumn), indexOf(names, CategoryColumn)
	if titleIndex < 0 || categoryIndex < 0 {
		mismatch := &SchemaMismatchError{Query: query, Got: names}
		if titleIndex < 0 {
			mismatch.Missing = append(mismatch.Missing, TitleColumn)
		}
		if categoryIndex < 0 {
			mismatch.Missing = append(mismatch.Missing, CategoryColumn)
		}
		return nil, mismatch
	}

	samples := make([]SampleRow, 0)
	for len(samples) < s.sampleLimit && rows.Next() {
		values := make([]any, len(names))
		scanTargets := make([]any, len(names))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, &DataAccessError{Op: "scan metadata row", Err: err}
		}
		samples = append(samples, SampleRow{
			Title:    formatValue(values[titleIndex]),
			Category: formatValue(values[categoryIndex]),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &DataAccessError{Op: "iterate metadata rows", Err: err}
	}
	return samples, nil
}

func indexOf(names []string, want string) int {
	for i, name := range names {
		if strings.EqualFold(strings.TrimSpace(name), want) {
			return i
		}
	}
	return -1
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(typed)
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
