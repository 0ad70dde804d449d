package sqlstore

import (
	"fmt"
	"regexp"
)

// Config names the columns the interval engine reads and writes. The
// mapping is resolved once at setup; nothing is discovered at runtime.
type Config struct {
	// KeyColumn holds the node's unique identifier.
	// Default: "name"
	KeyColumn string

	// ParentColumn holds the parent key; empty or NULL means root.
	// Default: "parent_key"
	ParentColumn string

	// LeftColumn and RightColumn hold the interval bounds.
	// Defaults: "lft", "rgt"
	LeftColumn  string
	RightColumn string

	// ModifiedColumn holds the last-modified timestamp, touched on every
	// structural write.
	// Default: "modified"
	ModifiedColumn string
}

// DefaultConfig returns the conventional column names.
func DefaultConfig() Config {
	return Config{
		KeyColumn:      "name",
		ParentColumn:   "parent_key",
		LeftColumn:     "lft",
		RightColumn:    "rgt",
		ModifiedColumn: "modified",
	}
}

// identRx matches the identifiers we are willing to interpolate into
// SQL. Column and table names cannot be bound as parameters, so anything
// else is rejected up front.
var identRx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validate fills in defaults and rejects unsafe identifiers.
func (c *Config) validate() error {
	if c.KeyColumn == "" {
		c.KeyColumn = "name"
	}
	if c.ParentColumn == "" {
		c.ParentColumn = "parent_key"
	}
	if c.LeftColumn == "" {
		c.LeftColumn = "lft"
	}
	if c.RightColumn == "" {
		c.RightColumn = "rgt"
	}
	if c.ModifiedColumn == "" {
		c.ModifiedColumn = "modified"
	}
	for _, col := range []string{c.KeyColumn, c.ParentColumn, c.LeftColumn, c.RightColumn, c.ModifiedColumn} {
		if !identRx.MatchString(col) {
			return fmt.Errorf("sqlstore: invalid column name %q", col)
		}
	}
	return nil
}

// checkTable rejects tree IDs that are not safe table names.
func checkTable(treeID string) error {
	if !identRx.MatchString(treeID) {
		return fmt.Errorf("sqlstore: invalid table name %q", treeID)
	}
	return nil
}
