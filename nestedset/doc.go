// Package nestedset maintains hierarchical records inside a flat table
// using the Nested Set Model.
//
// Each node stores a pair of interval bounds (left, right) such that
// ancestor/descendant relationships reduce to interval containment:
// A is an ancestor of B iff A.Left < B.Left and A.Right > B.Right.
// Whole-subtree reads become single-predicate range scans with no
// recursion, which is the entire performance rationale of the model.
//
// # Components
//
// [Tree] is the entry point. It is bound to one tree in one backing
// [Store] and offers:
//
//   - [Tree.SyncPosition] - assign or repair a node's interval after its
//     parent field was written (first attach inserts, parent change moves)
//   - [Tree.Rebuild] - recompute every interval from the parent-key graph
//   - [Tree.Root], [Tree.Ancestors], [Tree.Descendants] - read queries
//   - [Tree.Remove] - detach a node's interval ahead of physical deletion
//   - [Tree.Verify] - read-only invariant check for repair tooling
//
// The package never creates or deletes rows itself; it only relabels
// intervals. Record storage is the backend's concern.
//
// # Atomicity
//
// A single insertion or relocation touches many rows and must be applied
// as one all-or-nothing unit. Backends that can provide that implement
// [Txer]; Tree entry points use it when available. Two concurrent
// structural operations on the same tree race even when they touch
// unrelated nodes, so the backend must serialize them per tree.
//
// # Errors
//
//   - [ErrRecursion] - a node would become its own ancestor (recoverable)
//   - [ErrMultipleRoots] - single-root policy violated
//   - [ErrHasChildren] - cannot remove a node with children
//   - [ErrRootRemoval] - cannot remove a root without opting in
//   - [ErrCorruptTree] - interval invariant already broken; fatal for the
//     current operation
//   - [ErrNotFound] - node is not in the store
package nestedset
