package dynastore

import "errors"

var (
	// ErrParentNotFound is returned when the declared parent node doesn't exist.
	ErrParentNotFound = errors.New("arbor: parent node not found")

	// ErrAlreadyExists is returned when attempting to create a node with an existing key.
	ErrAlreadyExists = errors.New("arbor: node already exists")

	// ErrConcurrentModification is returned when a bulk update finds a row
	// changed between read and conditional write. The structural operation
	// must be retried from the start under the tree lease.
	ErrConcurrentModification = errors.New("arbor: node was modified concurrently")

	// ErrTreeLocked is returned when another structural operation holds the
	// per-tree lease.
	ErrTreeLocked = errors.New("arbor: tree is locked by another operation")
)
