package nestedset

import "errors"

var (
	// ErrNotFound is returned when a node key is absent from the store.
	ErrNotFound = errors.New("arbor: node not found")

	// ErrRecursion is returned when a node would become its own ancestor.
	// Raised before any mutation; the caller may recover by rejecting the
	// requested reparenting.
	ErrRecursion = errors.New("arbor: node cannot be moved under its own descendant")

	// ErrMultipleRoots is returned by EnforceSingleRoot when more than one
	// root exists. The core itself tolerates multiple roots; this is a
	// caller-opt-in policy.
	ErrMultipleRoots = errors.New("arbor: multiple root nodes not allowed")

	// ErrHasChildren is returned when removing a node that still has children.
	ErrHasChildren = errors.New("arbor: node has children")

	// ErrRootRemoval is returned when removing a root node without
	// RemoveOptions.AllowRoot.
	ErrRootRemoval = errors.New("arbor: root node cannot be removed")

	// ErrCorruptTree is returned when an internal consistency check fails.
	// This is fatal for the current operation: the surrounding transaction
	// must abort, since the interval invariant is already broken.
	ErrCorruptTree = errors.New("arbor: tree intervals are corrupt")
)
