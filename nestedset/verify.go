package nestedset

import (
	"context"
	"fmt"
	"sort"
)

// Verify checks the interval invariant against the parent-key graph
// without mutating anything: every positioned node has positive width,
// every child's interval is strictly contained in its parent's, and
// sibling intervals are pairwise disjoint. The first violation is
// returned wrapped in ErrCorruptTree so repair tooling can decide
// whether to Rebuild.
//
// Only nodes reachable from declared roots are checked, mirroring what
// Rebuild can repair.
func (t *Tree) Verify(ctx context.Context) error {
	roots, err := t.store.Children(ctx, t.treeID, "")
	if err != nil {
		return err
	}
	return t.verifySiblings(ctx, roots, nil)
}

// verifySiblings checks one sibling group against the enclosing bounds
// (nil for roots) and recurses into each subtree.
func (t *Tree) verifySiblings(ctx context.Context, keys []string, enclosing *Bounds) error {
	type sibling struct {
		key    string
		bounds Bounds
	}
	siblings := make([]sibling, 0, len(keys))
	for _, key := range keys {
		b, err := t.store.Bounds(ctx, t.treeID, key)
		if err != nil {
			return err
		}
		if b.Left >= b.Right {
			return fmt.Errorf("node %q has non-positive width [%d, %d]: %w",
				key, b.Left, b.Right, ErrCorruptTree)
		}
		if enclosing != nil && !enclosing.Contains(b) {
			return fmt.Errorf("node %q [%d, %d] not contained in its parent [%d, %d]: %w",
				key, b.Left, b.Right, enclosing.Left, enclosing.Right, ErrCorruptTree)
		}
		siblings = append(siblings, sibling{key: key, bounds: b})
	}

	// Sorted by left bound, pairwise disjointness reduces to checking
	// adjacent pairs.
	sort.Slice(siblings, func(i, j int) bool {
		return siblings[i].bounds.Left < siblings[j].bounds.Left
	})
	for i := 1; i < len(siblings); i++ {
		prev, cur := siblings[i-1], siblings[i]
		if cur.bounds.Left <= prev.bounds.Right {
			return fmt.Errorf("siblings %q [%d, %d] and %q [%d, %d] overlap: %w",
				prev.key, prev.bounds.Left, prev.bounds.Right,
				cur.key, cur.bounds.Left, cur.bounds.Right, ErrCorruptTree)
		}
	}

	for _, sib := range siblings {
		children, err := t.store.Children(ctx, t.treeID, sib.key)
		if err != nil {
			return err
		}
		b := sib.bounds
		if err := t.verifySiblings(ctx, children, &b); err != nil {
			return err
		}
	}
	return nil
}
