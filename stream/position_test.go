package stream_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/arbor/memstore"
	"github.com/jacentio/arbor/nestedset"
	"github.com/jacentio/arbor/stream"
)

const treeID = "accounts"

func newHandler(t *testing.T, defs ...nestedset.TreeDef) (*stream.Handler, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	r := nestedset.NewRegistry()
	if len(defs) == 0 {
		defs = []nestedset.TreeDef{{TreeID: treeID}}
	}
	for _, def := range defs {
		r.Register(def)
	}
	return stream.NewHandler(s, r, nil), s
}

func record(eventName, tree, key string, oldImage, newImage map[string]events.DynamoDBAttributeValue) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventID:   "evt-1",
		EventName: eventName,
		Change: events.DynamoDBStreamRecord{
			Keys: map[string]events.DynamoDBAttributeValue{
				"pk": events.NewStringAttribute(tree),
				"sk": events.NewStringAttribute(key),
			},
			OldImage: oldImage,
			NewImage: newImage,
		},
	}
}

func nodeImage(parent string, lft, rgt string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"parent_key": events.NewStringAttribute(parent),
		"lft":        events.NewNumberAttribute(lft),
		"rgt":        events.NewNumberAttribute(rgt),
	}
}

func wantBounds(t *testing.T, s *memstore.Store, key string, l, r int64) {
	t.Helper()
	b, err := s.Bounds(context.Background(), treeID, key)
	if err != nil {
		t.Fatalf("failed to read bounds of %q: %v", key, err)
	}
	if b.Left != l || b.Right != r {
		t.Errorf("%s: expected [%d, %d], got [%d, %d]", key, l, r, b.Left, b.Right)
	}
}

// --- Insert Event Tests ---

func TestHandlePositionSync_InsertAttaches(t *testing.T) {
	ctx := context.Background()
	h, s := newHandler(t)
	if err := s.Put(treeID, "root", ""); err != nil {
		t.Fatalf("failed to put: %v", err)
	}

	err := h.HandlePositionSync(ctx, events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			record("INSERT", treeID, "root", nil, nodeImage("", "0", "0")),
		},
	})
	if err != nil {
		t.Fatalf("failed to handle event: %v", err)
	}

	wantBounds(t, s, "root", 1, 2)
}

func TestHandlePositionSync_InsertUnderParent(t *testing.T) {
	ctx := context.Background()
	h, s := newHandler(t)
	if err := s.Put(treeID, "root", ""); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	if err := s.SetBounds(ctx, treeID, "root", nestedset.Bounds{Left: 1, Right: 2}); err != nil {
		t.Fatalf("failed to position root: %v", err)
	}
	if err := s.Put(treeID, "child", "root"); err != nil {
		t.Fatalf("failed to put: %v", err)
	}

	err := h.HandlePositionSync(ctx, events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			record("INSERT", treeID, "child", nil, nodeImage("root", "0", "0")),
		},
	})
	if err != nil {
		t.Fatalf("failed to handle event: %v", err)
	}

	wantBounds(t, s, "root", 1, 4)
	wantBounds(t, s, "child", 2, 3)
}

func TestHandlePositionSync_InsertAlreadyPositioned(t *testing.T) {
	ctx := context.Background()
	h, s := newHandler(t)
	if err := s.Put(treeID, "root", ""); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	if err := s.SetBounds(ctx, treeID, "root", nestedset.Bounds{Left: 1, Right: 2}); err != nil {
		t.Fatalf("failed to position root: %v", err)
	}

	// A re-imported row arrives with bounds already assigned; the
	// handler must not attach it a second time.
	err := h.HandlePositionSync(ctx, events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			record("INSERT", treeID, "root", nil, nodeImage("", "1", "2")),
		},
	})
	if err != nil {
		t.Fatalf("failed to handle event: %v", err)
	}

	wantBounds(t, s, "root", 1, 2)
}

func TestHandlePositionSync_InsertMissingParentFails(t *testing.T) {
	ctx := context.Background()
	h, s := newHandler(t)
	if err := s.Put(treeID, "root", ""); err != nil {
		t.Fatalf("failed to put: %v", err)
	}

	err := h.HandlePositionSync(ctx, events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			record("INSERT", treeID, "root", nil, nodeImage("ghost", "0", "0")),
		},
	})
	if !errors.Is(err, nestedset.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHandlePositionSync_SingleRootPolicyDoesNotFail(t *testing.T) {
	ctx := context.Background()
	h, s := newHandler(t, nestedset.TreeDef{TreeID: treeID, SingleRoot: true})
	if err := s.Put(treeID, "first", ""); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	if err := s.Put(treeID, "second", ""); err != nil {
		t.Fatalf("failed to put: %v", err)
	}

	// The second root violates the policy; the handler warns but the
	// attach itself goes through so the caller can repair.
	err := h.HandlePositionSync(ctx, events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			record("INSERT", treeID, "first", nil, nodeImage("", "0", "0")),
			record("INSERT", treeID, "second", nil, nodeImage("", "0", "0")),
		},
	})
	if err != nil {
		t.Fatalf("failed to handle event: %v", err)
	}

	wantBounds(t, s, "first", 1, 2)
	wantBounds(t, s, "second", 3, 4)
}

// --- Modify Event Tests ---

func TestHandlePositionSync_ModifyRelocates(t *testing.T) {
	ctx := context.Background()
	h, s := newHandler(t)
	tree := nestedset.New(s, treeID)
	for _, row := range []struct{ key, parent string }{
		{"R", ""}, {"A", "R"}, {"B", "R"},
	} {
		if err := s.Put(treeID, row.key, row.parent); err != nil {
			t.Fatalf("failed to put %q: %v", row.key, err)
		}
		n := &nestedset.Node{Key: row.key, Parent: row.parent}
		if err := tree.SyncPosition(ctx, n); err != nil {
			t.Fatalf("failed to sync %q: %v", row.key, err)
		}
	}
	if err := s.SetParent(treeID, "A", "B"); err != nil {
		t.Fatalf("failed to set parent: %v", err)
	}

	err := h.HandlePositionSync(ctx, events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			record("MODIFY", treeID, "A",
				nodeImage("R", "2", "3"),
				nodeImage("B", "2", "3")),
		},
	})
	if err != nil {
		t.Fatalf("failed to handle event: %v", err)
	}

	wantBounds(t, s, "R", 1, 6)
	wantBounds(t, s, "B", 2, 5)
	wantBounds(t, s, "A", 3, 4)
}

func TestHandlePositionSync_ModifySameParentSkipped(t *testing.T) {
	ctx := context.Background()
	h, s := newHandler(t)
	if err := s.Put(treeID, "root", ""); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	if err := s.SetBounds(ctx, treeID, "root", nestedset.Bounds{Left: 1, Right: 2}); err != nil {
		t.Fatalf("failed to position root: %v", err)
	}

	// The engine's own bound writes surface as MODIFY events with an
	// unchanged parent; they must not re-enter the engine.
	err := h.HandlePositionSync(ctx, events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			record("MODIFY", treeID, "root",
				nodeImage("", "1", "2"),
				nodeImage("", "3", "4")),
		},
	})
	if err != nil {
		t.Fatalf("failed to handle event: %v", err)
	}

	wantBounds(t, s, "root", 1, 2)
}

// --- Skip / Remove Tests ---

func TestHandlePositionSync_UnregisteredTreeSkipped(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandler(t)

	// No rows exist for this tree; the handler must not touch the store.
	err := h.HandlePositionSync(ctx, events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			record("INSERT", "unmanaged", "root", nil, nodeImage("", "0", "0")),
		},
	})
	if err != nil {
		t.Fatalf("expected unmanaged tree to be skipped, got %v", err)
	}
}

func TestHandlePositionSync_ReservedKeysSkipped(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandler(t)

	err := h.HandlePositionSync(ctx, events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			record("INSERT", treeID, "#lock", nil, nil),
			record("MODIFY", treeID, "#lock", nil, nil),
			record("REMOVE", treeID, "#lock", nil, nil),
		},
	})
	if err != nil {
		t.Fatalf("expected reserved keys to be skipped, got %v", err)
	}
}

func TestHandlePositionSync_RemoveNeverFails(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandler(t)

	// A row deleted mid-subtree only logs; repair is a rebuild.
	err := h.HandlePositionSync(ctx, events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			record("REMOVE", treeID, "gone", nodeImage("root", "2", "9"), nil),
			record("REMOVE", treeID, "leaf", nodeImage("root", "2", "3"), nil),
		},
	})
	if err != nil {
		t.Fatalf("expected remove events to be non-fatal, got %v", err)
	}
}

func TestNewHandler_NilDefaults(t *testing.T) {
	h := stream.NewHandler(memstore.New(), nil, nil)
	err := h.HandlePositionSync(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			record("INSERT", treeID, "root", nil, nodeImage("", "0", "0")),
		},
	})
	// Empty registry manages nothing, so the event is skipped.
	if err != nil {
		t.Fatalf("expected nil-safe handler, got %v", err)
	}
}
