package nestedset

import (
	"context"
	"fmt"
	"slices"
)

// Tree binds the interval engine to one tree in one backing store.
type Tree struct {
	store  Store
	treeID string
}

// New creates a Tree over the given store and tree identifier.
func New(store Store, treeID string) *Tree {
	return &Tree{
		store:  store,
		treeID: treeID,
	}
}

// TreeID returns the tree identifier this Tree operates on.
func (t *Tree) TreeID() string {
	return t.treeID
}

// within runs fn as one serialized, all-or-nothing unit when the backend
// supports it. The ordering of bulk updates inside fn is load-bearing;
// a partial application leaves the tree permanently inconsistent.
func (t *Tree) within(ctx context.Context, fn func(Store) error) error {
	if tx, ok := t.store.(Txer); ok {
		return tx.WithinTree(ctx, t.treeID, fn)
	}
	return fn(t.store)
}

// SyncPosition assigns or repairs a node's interval after its parent
// field was written. An unpositioned node is inserted under its declared
// parent; a positioned node whose parent changed is relocated with its
// whole subtree; otherwise nothing structural happened and this is a
// no-op.
//
// On return the node's PrevParent records the current parent for the
// next comparison and its Bounds reflect the store (the bulk updates
// move them by side effect).
func (t *Tree) SyncPosition(ctx context.Context, n *Node) error {
	err := t.within(ctx, func(s Store) error {
		switch {
		case !n.Bounds.Positioned():
			if _, err := t.insert(ctx, s, n); err != nil {
				return err
			}
		case n.Parent != n.PrevParent:
			if err := t.move(ctx, s, n); err != nil {
				return err
			}
		default:
			return nil
		}
		b, err := s.Bounds(ctx, t.treeID, n.Key)
		if err != nil {
			return err
		}
		n.Bounds = b
		return nil
	})
	if err != nil {
		return err
	}
	n.PrevParent = n.Parent
	return nil
}

// insert assigns the interval of a newly attached node, widening sibling
// and ancestor intervals to make room. It returns the assigned left
// bound. The node becomes its parent's last child; without a parent it
// is placed after all existing roots.
func (t *Tree) insert(ctx context.Context, s Store, n *Node) (int64, error) {
	var target int64
	if n.Parent != "" {
		pb, err := s.Bounds(ctx, t.treeID, n.Parent)
		if err != nil {
			return 0, fmt.Errorf("read parent %q: %w", n.Parent, err)
		}
		// A fresh node cannot loop, but a re-insert of a previously
		// detached node could.
		if err := t.validateLoop(ctx, s, n.Key, pb); err != nil {
			return 0, err
		}
		target = pb.Right
	} else {
		max, err := s.MaxRight(ctx, t.treeID, true)
		if err != nil {
			return 0, err
		}
		target = max + 1
	}
	if target < 1 {
		target = 1
	}

	// Open a 2-unit gap at target, propagating to all ancestors and
	// later siblings. Right bounds first, then left bounds.
	err := s.UpdateBounds(ctx, t.treeID,
		Predicate{{Bound: BoundRight, Op: OpGE, Value: target}},
		Update{Left: Keep(), Right: Shift(2)})
	if err != nil {
		return 0, err
	}
	err = s.UpdateBounds(ctx, t.treeID,
		Predicate{{Bound: BoundLeft, Op: OpGE, Value: target}},
		Update{Left: Shift(2), Right: Keep()})
	if err != nil {
		return 0, err
	}

	// After widening no node may occupy the gap. If one does, the
	// invariant was already broken before we started; abort loudly.
	occupied, err := s.Enumerate(ctx, t.treeID,
		Predicate{{Bound: BoundLeft, Op: OpEQ, Value: target}}, OrderLeftAsc, 1)
	if err != nil {
		return 0, err
	}
	if len(occupied) == 0 {
		occupied, err = s.Enumerate(ctx, t.treeID,
			Predicate{{Bound: BoundRight, Op: OpEQ, Value: target + 1}}, OrderLeftAsc, 1)
		if err != nil {
			return 0, err
		}
	}
	if len(occupied) > 0 {
		return 0, fmt.Errorf("insert %q: interval [%d, %d] already occupied by %q: %w",
			n.Key, target, target+1, occupied[0], ErrCorruptTree)
	}

	if err := s.SetBounds(ctx, t.treeID, n.Key, Bounds{Left: target, Right: target + 1}); err != nil {
		return 0, err
	}
	n.Bounds = Bounds{Left: target, Right: target + 1}
	return target, nil
}

// move relocates a positioned node and its whole subtree under the
// node's declared parent (or to root space when the parent is empty).
//
// The sequence is detach / compact / widen destination / reattach. The
// subtree is first reflected into negative space so the compaction and
// widening arithmetic cannot collide with it, and the reattach offset
// is computed from the destination parent's pre-widening coordinates.
func (t *Tree) move(ctx context.Context, s Store, n *Node) error {
	if n.Parent != "" {
		pb, err := s.Bounds(ctx, t.treeID, n.Parent)
		if err != nil {
			return fmt.Errorf("read parent %q: %w", n.Parent, err)
		}
		if err := t.validateLoop(ctx, s, n.Key, pb); err != nil {
			return err
		}
	}

	diff := n.Bounds.Width()

	// Detach: reflect the node and all its descendants into negative
	// space.
	err := s.UpdateBounds(ctx, t.treeID,
		Predicate{
			{Bound: BoundLeft, Op: OpGE, Value: n.Bounds.Left},
			{Bound: BoundRight, Op: OpLE, Value: n.Bounds.Right},
		},
		Update{Left: Reflect(0), Right: Reflect(0)})
	if err != nil {
		return err
	}

	// Compact the gap left behind: everything strictly to the right of
	// the vacated subtree shifts left, and straddling ancestors lose
	// diff from their right edge only.
	err = s.UpdateBounds(ctx, t.treeID,
		Predicate{{Bound: BoundLeft, Op: OpGT, Value: n.Bounds.Right}},
		Update{Left: Shift(-diff), Right: Shift(-diff)})
	if err != nil {
		return err
	}
	err = s.UpdateBounds(ctx, t.treeID,
		Predicate{
			{Bound: BoundLeft, Op: OpLT, Value: n.Bounds.Left},
			{Bound: BoundRight, Op: OpGT, Value: n.Bounds.Right},
		},
		Update{Left: Keep(), Right: Shift(-diff)})
	if err != nil {
		return err
	}

	var newDiff int64
	if n.Parent != "" {
		// Re-read the parent: the compaction above may have shifted it.
		pb, err := s.Bounds(ctx, t.treeID, n.Parent)
		if err != nil {
			return fmt.Errorf("read parent %q: %w", n.Parent, err)
		}

		// Make room at the destination. The parent's own right bound
		// grows by diff; everything past its old right edge shifts
		// right; straddling ancestors grow on the right edge only.
		if err := s.SetBounds(ctx, t.treeID, n.Parent, Bounds{Left: pb.Left, Right: pb.Right + diff}); err != nil {
			return err
		}
		err = s.UpdateBounds(ctx, t.treeID,
			Predicate{{Bound: BoundLeft, Op: OpGT, Value: pb.Right}},
			Update{Left: Shift(diff), Right: Shift(diff)})
		if err != nil {
			return err
		}
		err = s.UpdateBounds(ctx, t.treeID,
			Predicate{
				{Bound: BoundLeft, Op: OpLT, Value: pb.Left},
				{Bound: BoundRight, Op: OpGT, Value: pb.Right},
			},
			Update{Left: Keep(), Right: Shift(diff)})
		if err != nil {
			return err
		}

		// Offset from the parent's pre-widening right bound: the
		// incoming subtree lands just inside the new right edge.
		newDiff = pb.Right - n.Bounds.Left
	} else {
		// New root: place after everything in the tree.
		max, err := s.MaxRight(ctx, t.treeID, false)
		if err != nil {
			return err
		}
		newDiff = max + 1 - n.Bounds.Left
	}

	// Reattach: reflecting negative space back with the offset restores
	// true sign and translates the whole subtree in one pass, keeping
	// every relative interval relationship within it intact.
	return s.UpdateBounds(ctx, t.treeID,
		Predicate{{Bound: BoundLeft, Op: OpLT, Value: 0}},
		Update{Left: Reflect(newDiff), Right: Reflect(newDiff)})
}

// validateLoop fails with ErrRecursion when candidateKey lies within the
// given interval, i.e. the node would become its own ancestor. It must
// run before any interval mutation; after a partial mutation it would be
// computed on corrupted state.
func (t *Tree) validateLoop(ctx context.Context, s Store, candidateKey string, b Bounds) error {
	containers, err := s.Enumerate(ctx, t.treeID,
		Predicate{
			{Bound: BoundLeft, Op: OpLE, Value: b.Left},
			{Bound: BoundRight, Op: OpGE, Value: b.Right},
		},
		OrderLeftAsc, 0)
	if err != nil {
		return err
	}
	if slices.Contains(containers, candidateKey) {
		return fmt.Errorf("node %q: %w", candidateKey, ErrRecursion)
	}
	return nil
}

// HasChildren reports whether any stored node declares key as its parent.
func (t *Tree) HasChildren(ctx context.Context, key string) (bool, error) {
	children, err := t.store.Children(ctx, t.treeID, key)
	if err != nil {
		return false, err
	}
	return len(children) > 0, nil
}

// RootCount returns the number of nodes with an empty parent field.
func (t *Tree) RootCount(ctx context.Context) (int, error) {
	roots, err := t.store.Children(ctx, t.treeID, "")
	if err != nil {
		return 0, err
	}
	return len(roots), nil
}

// EnforceSingleRoot returns ErrMultipleRoots when the tree has more than
// one root. Single-root is a domain policy, not a core invariant; callers
// that want it invoke this after attaching a root.
func (t *Tree) EnforceSingleRoot(ctx context.Context) error {
	count, err := t.RootCount(ctx)
	if err != nil {
		return err
	}
	if count > 1 {
		return fmt.Errorf("%d roots: %w", count, ErrMultipleRoots)
	}
	return nil
}

// RemoveOptions configures Remove behavior.
type RemoveOptions struct {
	// AllowRoot permits removing a root node.
	AllowRoot bool
}

// Remove detaches a node's interval ahead of physical deletion: the node
// is reparented to empty, which relocates its two-unit interval to root
// space where absorbing it cannot disturb any other subtree. The node
// must have no children. Physical row deletion stays with the caller,
// who must also persist the cleared parent field.
func (t *Tree) Remove(ctx context.Context, n *Node, opts RemoveOptions) error {
	if n.Parent == "" && !opts.AllowRoot {
		return fmt.Errorf("node %q: %w", n.Key, ErrRootRemoval)
	}
	hasChildren, err := t.HasChildren(ctx, n.Key)
	if err != nil {
		return err
	}
	if hasChildren {
		return fmt.Errorf("node %q: %w", n.Key, ErrHasChildren)
	}
	n.Parent = ""
	return t.SyncPosition(ctx, n)
}
