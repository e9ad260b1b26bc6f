// Package sql validates and quotes the dynamic SQL this service generates:
// per-upload cleaned tables, unified views and their column lists.
package sql

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern limits dynamic relation and column names to lowercase
// snake case within the PostgreSQL 63-byte identifier bound.
var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidateIdentifier rejects names that generated DDL must never interpolate.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid SQL identifier %q", name)
	}
	return nil
}

// QuoteIdentifier double-quotes an identifier, doubling embedded quotes.
// Inferred column headers pass through here, so arbitrary content is assumed.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
