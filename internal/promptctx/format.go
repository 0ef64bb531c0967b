package promptctx

import (
	"strings"

	"github.com/ghimmohmoh/ghimmohmoh/internal/tableref"
	"github.com/ghimmohmoh/ghimmohmoh/internal/warehouse"
)

// FormatColumns renders one "- **NAME**: TYPE" line per column.
func FormatColumns(columns []warehouse.Column) string {
	lines := make([]string, 0, len(columns))
	for _, column := range columns {
		lines = append(lines, "- **"+column.Name+"**: "+column.DataType)
	}
	return strings.Join(lines, "\n")
}

// FormatSamples renders one "- **TITLE**: CATEGORY" line per row.
func FormatSamples(samples []warehouse.SampleRow) string {
	lines := make([]string, 0, len(samples))
	for _, sample := range samples {
		lines = append(lines, "- **"+sample.Title+"**: "+sample.Category)
	}
	return strings.Join(lines, "\n")
}

// Render builds the context document. The variables section is included only
// when withSamples is set, even if samples is empty.
func Render(table tableref.Locator, description string, columns []warehouse.Column, samples []warehouse.SampleRow, withSamples bool) string {
	name := table.String()

	var b strings.Builder
	b.WriteString("\nHere is the table name <tableName> ")
	b.WriteString(name)
	b.WriteString(" </tableName>\n\n<tableDescription>")
	b.WriteString(description)
	b.WriteString("</tableDescription>\n\nHere are the columns of the ")
	b.WriteString(name)
	b.WriteString("\n\n<columns>\n\n")
	b.WriteString(FormatColumns(columns))
	b.WriteString("\n\n</columns>\n")
	if withSamples {
		b.WriteString("\n\nAvailable variables by TITLE:\n\n")
		b.WriteString(FormatSamples(samples))
	}
	return b.String()
}
