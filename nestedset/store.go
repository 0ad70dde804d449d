package nestedset

import "context"

// Store is the contract a backend offers to the interval engine. The
// engine consumes it; it never implements it. Every write is expected to
// touch the matched rows' last-modified timestamp.
type Store interface {
	// Bounds returns a node's interval. ErrNotFound if the key is absent.
	Bounds(ctx context.Context, treeID, key string) (Bounds, error)

	// SetBounds assigns a node's interval. ErrNotFound if the key is absent.
	SetBounds(ctx context.Context, treeID, key string, b Bounds) error

	// UpdateBounds applies the rewrite to every node matching the
	// predicate. This is the widen/detach/compact/reattach workhorse;
	// it may touch the entire tree.
	UpdateBounds(ctx context.Context, treeID string, where Predicate, set Update) error

	// Enumerate returns the keys of nodes matching the predicate in the
	// given order. limit <= 0 means no limit.
	Enumerate(ctx context.Context, treeID string, where Predicate, order Order, limit int) ([]string, error)

	// Children returns the keys whose stored parent field equals
	// parentKey, in stable lexicographic order. An empty parentKey
	// lists the roots.
	Children(ctx context.Context, treeID, parentKey string) ([]string, error)

	// MaxRight returns the maximum right bound over the tree, or 0 when
	// no rows match. With rootsOnly it is scoped to rows whose parent
	// field is empty, which is what root insertion uses.
	MaxRight(ctx context.Context, treeID string, rootsOnly bool) (int64, error)
}

// Txer is an optional Store capability: running a function as one
// serialized, all-or-nothing unit per tree. Tree entry points use it
// when the backend provides it and fall back to direct calls otherwise.
//
// The Store passed to fn must observe and apply writes within the unit;
// if fn returns an error, none of those writes may remain visible.
type Txer interface {
	WithinTree(ctx context.Context, treeID string, fn func(Store) error) error
}
