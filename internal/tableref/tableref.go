package tableref

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrInvalidLocator = errors.New("invalid table locator")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// Locator identifies a queryable relation as database.schema.table.
type Locator struct {
	Database string
	Schema   string
	Table    string
}

func Parse(raw string) (Locator, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Locator{}, fmt.Errorf("%w: %q has %d segments, want database.schema.table", ErrInvalidLocator, raw, len(parts))
	}
	for _, part := range parts {
		if part == "" {
			return Locator{}, fmt.Errorf("%w: %q has an empty segment", ErrInvalidLocator, raw)
		}
		if !identifierPattern.MatchString(part) {
			return Locator{}, fmt.Errorf("%w: segment %q of %q is not a plain identifier", ErrInvalidLocator, part, raw)
		}
	}
	return Locator{Database: parts[0], Schema: parts[1], Table: parts[2]}, nil
}

// Join builds a locator from a database.schema path and a table or view name.
func Join(schemaPath, table string) (Locator, error) {
	return Parse(strings.TrimSpace(schemaPath) + "." + strings.TrimSpace(table))
}

func (l Locator) String() string {
	return l.Database + "." + l.Schema + "." + l.Table
}

func (l Locator) IsZero() bool {
	return l == Locator{}
}
