package nestedset

// Bounds is a node's interval as stored: Left < Right for every
// positioned node, and the interval of an ancestor strictly contains the
// intervals of all its descendants.
type Bounds struct {
	Left  int64
	Right int64
}

// Positioned reports whether the bounds have been assigned.
// A node is unpositioned (0, 0) until its first synchronization.
func (b Bounds) Positioned() bool {
	return b.Left != 0 || b.Right != 0
}

// Width returns the number of interval units the node spans.
// A leaf spans 2; a subtree of n nodes spans 2n.
func (b Bounds) Width() int64 {
	return b.Right - b.Left + 1
}

// Contains reports whether b strictly contains o, i.e. whether the node
// holding b is an ancestor of the node holding o.
func (b Bounds) Contains(o Bounds) bool {
	return b.Left < o.Left && b.Right > o.Right
}

// Node is the in-memory handle for one hierarchical record. The caller
// owns the record itself; Tree only reads and writes the fields below.
type Node struct {
	// Key is the node's unique identifier, stable across moves.
	Key string

	// Parent is the key of the node's declared parent; empty means root.
	Parent string

	// PrevParent is the parent as of the last synchronization. It is
	// transient, in-memory state used to detect parent changes; it is
	// never persisted by this package.
	PrevParent string

	// Bounds is the node's interval. SyncPosition refreshes it after
	// every structural change, since bulk updates move it by side effect.
	Bounds Bounds
}
