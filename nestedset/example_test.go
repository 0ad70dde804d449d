package nestedset_test

import (
	"context"
	"fmt"

	"github.com/jacentio/arbor/memstore"
	"github.com/jacentio/arbor/nestedset"
)

// ExampleTree_SyncPosition demonstrates the write path: the caller
// persists the parent field, then hands the node to the engine for
// interval assignment.
func ExampleTree_SyncPosition() {
	ctx := context.Background()
	store := memstore.New()
	tree := nestedset.New(store, "accounts")

	_ = store.Put("accounts", "root", "")
	_ = store.Put("accounts", "child", "root")

	for _, key := range []string{"root", "child"} {
		parent, _ := store.Parent("accounts", key)
		n := &nestedset.Node{Key: key, Parent: parent}
		if err := tree.SyncPosition(ctx, n); err != nil {
			fmt.Println("sync:", err)
			return
		}
	}

	for _, key := range []string{"root", "child"} {
		b, _ := store.Bounds(ctx, "accounts", key)
		fmt.Printf("%s [%d %d]\n", key, b.Left, b.Right)
	}
	// Output:
	// root [1 4]
	// child [2 3]
}

// ExampleTree_Descendants demonstrates that subtree reads are a single
// interval scan, with no recursion.
func ExampleTree_Descendants() {
	ctx := context.Background()
	store := memstore.New()
	tree := nestedset.New(store, "accounts")

	for _, row := range []struct{ key, parent string }{
		{"root", ""},
		{"a", "root"},
		{"a1", "a"},
		{"b", "root"},
	} {
		_ = store.Put("accounts", row.key, row.parent)
		n := &nestedset.Node{Key: row.key, Parent: row.parent}
		_ = tree.SyncPosition(ctx, n)
	}

	keys, _ := tree.Descendants(ctx, "root", nestedset.QueryOptions{
		Order: &nestedset.OrderLeftAsc,
	})
	fmt.Println(keys)
	// Output:
	// [a a1 b]
}

// ExampleTree_Rebuild demonstrates recovering the intervals from the
// parent-key graph alone.
func ExampleTree_Rebuild() {
	ctx := context.Background()
	store := memstore.New()
	tree := nestedset.New(store, "accounts")

	// Rows exist but nothing has been positioned.
	_ = store.Put("accounts", "root", "")
	_ = store.Put("accounts", "a", "root")
	_ = store.Put("accounts", "b", "root")

	if err := tree.Rebuild(ctx); err != nil {
		fmt.Println("rebuild:", err)
		return
	}

	for _, key := range []string{"root", "a", "b"} {
		b, _ := store.Bounds(ctx, "accounts", key)
		fmt.Printf("%s [%d %d]\n", key, b.Left, b.Right)
	}
	// Output:
	// root [1 6]
	// a [2 3]
	// b [4 5]
}
