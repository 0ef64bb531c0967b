package warehouse

import (
	"strings"
	"testing"

	"github.com/ghimmohmoh/ghimmohmoh/internal/tableref"
)

func TestSnowflakeColumnsQueryUppercasesLookup(t *testing.T) {
	table := tableref.Locator{Database: "ghimmohmog_sample", Schema: "public", Table: "view3"}
	query, args := Snowflake.ColumnsQuery(table)

	if !strings.Contains(query, `FROM "GHIMMOHMOG_SAMPLE".INFORMATION_SCHEMA.COLUMNS`) {
		t.Fatalf("query = %s", query)
	}
	if !strings.Contains(query, "WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?") {
		t.Fatalf("query = %s", query)
	}
	if len(args) != 2 || args[0] != "PUBLIC" || args[1] != "VIEW3" {
		t.Fatalf("args = %#v", args)
	}
}

func TestPostgresColumnsQueryUsesNumberedPlaceholders(t *testing.T) {
	table := tableref.Locator{Database: "Analytics", Schema: "Public", Table: "Events"}
	query, args := Postgres.ColumnsQuery(table)

	if !strings.Contains(query, "table_catalog = $1 AND table_schema = $2 AND table_name = $3") {
		t.Fatalf("query = %s", query)
	}
	if len(args) != 3 || args[0] != "analytics" || args[1] != "public" || args[2] != "events" {
		t.Fatalf("args = %#v", args)
	}
}

func TestDuckDBColumnsQueryKeepsCase(t *testing.T) {
	table := tableref.Locator{Database: "DB", Schema: "SCHEMA", Table: "VIEW3"}
	_, args := DuckDB.ColumnsQuery(table)
	if len(args) != 3 || args[0] != "DB" || args[1] != "SCHEMA" || args[2] != "VIEW3" {
		t.Fatalf("args = %#v", args)
	}
}

func TestSampleQueryPerDialect(t *testing.T) {
	table := tableref.Locator{Database: "DB", Schema: "SCHEMA", Table: "VIEW3"}

	if got := Snowflake.SampleQuery(table, 100); got != `SELECT TOP 100 TITLE, CATEGORY FROM "DB"."SCHEMA"."VIEW3"` {
		t.Fatalf("snowflake sample query = %s", got)
	}
	if got := Postgres.SampleQuery(table, 10); got != `SELECT TITLE, CATEGORY FROM "db"."schema"."view3" LIMIT 10` {
		t.Fatalf("postgres sample query = %s", got)
	}
	if got := DuckDB.SampleQuery(table, 5); got != `SELECT TITLE, CATEGORY FROM "DB"."SCHEMA"."VIEW3" LIMIT 5` {
		t.Fatalf("duckdb sample query = %s", got)
	}
}

func TestDialectForDriver(t *testing.T) {
	tests := map[string]string{
		"snowflake": "snowflake",
		"pgx":       "postgres",
		"postgres":  "postgres",
		"DuckDB":    "duckdb",
	}
	for driver, want := range tests {
		dialect, err := DialectForDriver(driver)
		if err != nil {
			t.Fatalf("DialectForDriver(%q) error = %v", driver, err)
		}
		if dialect.Name != want {
			t.Fatalf("DialectForDriver(%q) = %q, want %q", driver, dialect.Name, want)
		}
	}
	if _, err := DialectForDriver("oracle"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestQuoteIdentEscapesQuotes(t *testing.T) {
	if got := Snowflake.QuoteIdent(`a"b`); got != `"a""b"` {
		t.Fatalf("QuoteIdent() = %s", got)
	}
}
