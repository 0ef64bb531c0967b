package warehouse

import (
	"fmt"
	"strings"
)

// DataAccessError wraps a failed round-trip to the warehouse: connectivity,
// permissions or a query the warehouse rejected.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("warehouse %s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// SchemaMismatchError reports a metadata query whose result set lacks the
// columns the formatter needs.
type SchemaMismatchError struct {
	Query   string
	Missing []string
	Got     []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("metadata query result is missing column(s) %s (got %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Got, ", "))
}
