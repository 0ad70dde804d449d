package dynastore

import "time"

// Config holds configuration for the Store.
type Config struct {
	// NodeTable is the name of the node table (pk = tree ID, sk = node key).
	// Default: "arbor_nodes"
	NodeTable string

	// ChildIndexTable is the name of the children index table.
	// Default: "arbor_children"
	ChildIndexTable string

	// LeftIndex and RightIndex are the node table GSIs keyed by
	// (tree ID, lft) and (tree ID, rgt), used for ordered enumeration
	// and max-right lookups.
	// Defaults: "lft-index", "rgt-index"
	LeftIndex  string
	RightIndex string

	// NumShards is the number of shards for the children index table.
	// Higher values increase write throughput but require more parallel
	// queries per Children call.
	// Default: 1 (no sharding, single query)
	// Max: 256
	NumShards int

	// LockTTL bounds how long a crashed structural operation can hold
	// the per-tree lease before another writer may take it over.
	// Default: 30s
	LockTTL time.Duration
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		NodeTable:       "arbor_nodes",
		ChildIndexTable: "arbor_children",
		LeftIndex:       "lft-index",
		RightIndex:      "rgt-index",
		NumShards:       1,
		LockTTL:         30 * time.Second,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.NodeTable == "" {
		c.NodeTable = "arbor_nodes"
	}
	if c.ChildIndexTable == "" {
		c.ChildIndexTable = "arbor_children"
	}
	if c.LeftIndex == "" {
		c.LeftIndex = "lft-index"
	}
	if c.RightIndex == "" {
		c.RightIndex = "rgt-index"
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > 256 {
		c.NumShards = 256
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
}
