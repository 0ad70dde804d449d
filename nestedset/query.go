package nestedset

import (
	"context"
	"fmt"
)

// QueryOptions tunes ancestor and descendant queries. The zero value
// means default order (left descending, nearest first) and no limit.
type QueryOptions struct {
	// Order overrides the sort order when non-nil.
	Order *Order

	// Limit caps the number of returned keys (0 = no limit).
	Limit int
}

func (o QueryOptions) order() Order {
	if o.Order != nil {
		return *o.Order
	}
	return OrderLeftDesc
}

// Root returns the key of the tree's root: the positioned node that no
// other node contains. With malformed data (several such nodes) the one
// with the smallest left bound is returned; this is best-effort, not a
// correctness guarantee. ErrNotFound if the tree has no positioned nodes.
func (t *Tree) Root(ctx context.Context) (string, error) {
	keys, err := t.store.Enumerate(ctx, t.treeID,
		Predicate{{Bound: BoundLeft, Op: OpGE, Value: 1}}, OrderLeftAsc, 0)
	if err != nil {
		return "", err
	}
	for _, key := range keys {
		b, err := t.store.Bounds(ctx, t.treeID, key)
		if err != nil {
			return "", err
		}
		// Skip zero-width debris; the minimum-left node of real width
		// is never strictly contained.
		if b.Right > b.Left {
			return key, nil
		}
	}
	return "", fmt.Errorf("tree %q has no root: %w", t.treeID, ErrNotFound)
}

// Ancestors returns the keys of all nodes whose interval strictly
// contains the given node's interval. Default order is nearest ancestor
// first. A single-predicate scan; no recursion.
func (t *Tree) Ancestors(ctx context.Context, key string, opts QueryOptions) ([]string, error) {
	b, err := t.store.Bounds(ctx, t.treeID, key)
	if err != nil {
		return nil, err
	}
	return t.store.Enumerate(ctx, t.treeID,
		Predicate{
			{Bound: BoundLeft, Op: OpLT, Value: b.Left},
			{Bound: BoundRight, Op: OpGT, Value: b.Right},
		},
		opts.order(), opts.Limit)
}

// Descendants returns the keys of all nodes whose interval is strictly
// contained within the given node's interval. A single-predicate scan;
// no recursion.
func (t *Tree) Descendants(ctx context.Context, key string, opts QueryOptions) ([]string, error) {
	b, err := t.store.Bounds(ctx, t.treeID, key)
	if err != nil {
		return nil, err
	}
	return t.store.Enumerate(ctx, t.treeID,
		Predicate{
			{Bound: BoundLeft, Op: OpGT, Value: b.Left},
			{Bound: BoundRight, Op: OpLT, Value: b.Right},
		},
		opts.order(), opts.Limit)
}
