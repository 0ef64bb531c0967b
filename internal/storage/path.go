package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"

	"github.com/ghimmohmoh/ghimmohmoh/internal/tableref"
)

const PromptRoot = "prompts"

var (
	pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9._$-]{0,127}$`)
	digestPattern        = regexp.MustCompile(`^[0-9a-f]{8,64}$`)
)

// PromptPrefix is the directory holding every archived prompt for table.
func PromptPrefix(table tableref.Locator) (string, error) {
	for _, component := range []struct{ value, field string }{
		{table.Database, "database"},
		{table.Schema, "schema"},
		{table.Table, "table"},
	} {
		if err := validatePathComponent(component.value, component.field); err != nil {
			return "", err
		}
	}
	return path.Join(PromptRoot, table.Database, table.Schema, table.Table) + "/", nil
}

// BuildPromptPath lays archived prompts out by table and UTC day so a prefix
// listing returns them oldest first.
func BuildPromptPath(table tableref.Locator, renderedAt time.Time, digest string) (string, error) {
	prefix, err := PromptPrefix(table)
	if err != nil {
		return "", err
	}
	if !digestPattern.MatchString(digest) {
		return "", fmt.Errorf("invalid digest: %q", digest)
	}

	ts := renderedAt.UTC()
	return path.Join(
		prefix,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("%019d-%s.md", ts.UnixNano(), digest),
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
