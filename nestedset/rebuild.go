package nestedset

import "context"

// Rebuild recomputes every interval in the tree from the parent-key
// graph: depth-first pre-order numbering where left is assigned on entry
// and right on exit. This is the authoritative ground-truth construction,
// used to repair drift or after structural merges where incremental
// maintenance is impractical.
//
// Roots and children are processed in the store's stable order, so
// rebuilding an unchanged tree twice yields identical assignments.
// Multiple roots get disjoint ranges in enumeration order. Nodes
// unreachable from a root (orphaned parent references) are a
// data-integrity defect the rebuild cannot fix; they are simply never
// visited and keep their stale bounds.
func (t *Tree) Rebuild(ctx context.Context) error {
	return t.within(ctx, func(s Store) error {
		roots, err := s.Children(ctx, t.treeID, "")
		if err != nil {
			return err
		}
		next := int64(1)
		for _, root := range roots {
			next, err = t.rebuildNode(ctx, s, root, next)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// rebuildNode assigns key the interval starting at left, recurses into
// its children, and returns the next free counter value.
func (t *Tree) rebuildNode(ctx context.Context, s Store, key string, left int64) (int64, error) {
	right := left + 1
	children, err := s.Children(ctx, t.treeID, key)
	if err != nil {
		return 0, err
	}
	for _, child := range children {
		right, err = t.rebuildNode(ctx, s, child, right)
		if err != nil {
			return 0, err
		}
	}
	if err := s.SetBounds(ctx, t.treeID, key, Bounds{Left: left, Right: right}); err != nil {
		return 0, err
	}
	return right + 1, nil
}
