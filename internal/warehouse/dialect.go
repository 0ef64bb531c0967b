package warehouse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ghimmohmoh/ghimmohmoh/internal/tableref"
)

const (
	TitleColumn    = "TITLE"
	CategoryColumn = "CATEGORY"
)

// Dialect captures the per-warehouse differences in identifier case,
// placeholders and row limiting.
type Dialect struct {
	Name        string
	DisplayName string
	fold        func(string) string
	placeholder func(int) string
	topN        bool
	catalogView bool
}

var (
	Snowflake = Dialect{
		Name:        "snowflake",
		DisplayName: "Snowflake",
		fold:        strings.ToUpper,
		placeholder: func(int) string { return "?" },
		topN:        true,
	}
	Postgres = Dialect{
		Name:        "postgres",
		DisplayName: "PostgreSQL",
		fold:        strings.ToLower,
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		catalogView: true,
	}
	DuckDB = Dialect{
		Name:        "duckdb",
		DisplayName: "DuckDB",
		fold:        func(s string) string { return s },
		placeholder: func(int) string { return "?" },
		catalogView: true,
	}
)

// DialectForDriver maps a database/sql driver name to its dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "snowflake":
		return Snowflake, nil
	case "pgx", "postgres":
		return Postgres, nil
	case "duckdb":
		return DuckDB, nil
	default:
		return Dialect{}, fmt.Errorf("no dialect for driver %q", driver)
	}
}

func (d Dialect) Fold(identifier string) string {
	return d.fold(identifier)
}

func (d Dialect) QuoteIdent(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// ColumnsQuery returns the information-schema lookup for table. Schema and
// table names are bound; the database name is quoted.
func (d Dialect) ColumnsQuery(table tableref.Locator) (string, []any) {
	database := d.Fold(table.Database)
	schema := d.Fold(table.Schema)
	name := d.Fold(table.Table)
	if d.catalogView {
		query := fmt.Sprintf(`SELECT column_name, data_type FROM information_schema.columns
WHERE table_catalog = %s AND table_schema = %s AND table_name = %s
ORDER BY ordinal_position`, d.placeholder(1), d.placeholder(2), d.placeholder(3))
		return query, []any{database, schema, name}
	}
	query := fmt.Sprintf(`SELECT COLUMN_NAME, DATA_TYPE FROM %s.INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = %s AND TABLE_NAME = %s
ORDER BY ORDINAL_POSITION`, d.QuoteIdent(database), d.placeholder(1), d.placeholder(2))
	return query, []any{schema, name}
}

// SampleQuery is the default metadata query: up to limit TITLE/CATEGORY rows
// from table.
func (d Dialect) SampleQuery(table tableref.Locator, limit int) string {
	relation := strings.Join([]string{
		d.QuoteIdent(d.Fold(table.Database)),
		d.QuoteIdent(d.Fold(table.Schema)),
		d.QuoteIdent(d.Fold(table.Table)),
	}, ".")
	if d.topN {
		return fmt.Sprintf("SELECT TOP %d %s, %s FROM %s", limit, TitleColumn, CategoryColumn, relation)
	}
	return fmt.Sprintf("SELECT %s, %s FROM %s LIMIT %d", TitleColumn, CategoryColumn, relation, limit)
}
