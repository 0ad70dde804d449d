// Package stream provides DynamoDB Streams handlers that drive nested
// set position synchronization.
//
// The interval engine itself is invoked explicitly; this handler is the
// thin lifecycle layer that watches the node table's stream and decides
// when a record write needs structural work: an INSERT of an
// unpositioned node triggers a first attach, a MODIFY that changed the
// parent field triggers a relocation, and every other MODIFY is skipped
// so the engine's own bound writes do not re-trigger it.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/arbor/nestedset"
)

// Handler processes DynamoDB stream events for position synchronization.
type Handler struct {
	store    nestedset.Store
	registry *nestedset.Registry
	logger   *slog.Logger
}

// NewHandler creates a new stream handler. Only trees present in the
// registry are managed; events for other partition keys are skipped.
func NewHandler(store nestedset.Store, registry *nestedset.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = nestedset.NewRegistry()
	}
	return &Handler{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// HandlePositionSync processes DynamoDB stream events, keeping interval
// bounds in step with parent-field writes. This function is designed to
// be used as an AWS Lambda handler.
func (h *Handler) HandlePositionSync(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	treeID := getStringAttr(record.Change.Keys, "pk")
	key := getStringAttr(record.Change.Keys, "sk")

	// Reserved items (the tree lease) never carry positions.
	if key == "" || key[0] == '#' {
		return nil
	}

	def, ok := h.registry.Lookup(treeID)
	if !ok {
		return nil
	}
	tree := nestedset.New(h.store, treeID)

	switch record.EventName {
	case "INSERT":
		return h.processInsert(ctx, tree, def, record, key)
	case "MODIFY":
		return h.processModify(ctx, tree, record, key)
	case "REMOVE":
		h.checkRemove(record, treeID, key)
		return nil
	}
	return nil
}

// processInsert attaches a freshly created, unpositioned node.
func (h *Handler) processInsert(ctx context.Context, tree *nestedset.Tree, def nestedset.TreeDef, record events.DynamoDBEventRecord, key string) error {
	lft := getNumberAttr(record.Change.NewImage, "lft")
	rgt := getNumberAttr(record.Change.NewImage, "rgt")
	if lft != 0 || rgt != 0 {
		// Re-imported row with bounds already assigned.
		return nil
	}

	node := &nestedset.Node{
		Key:    key,
		Parent: getStringAttr(record.Change.NewImage, "parent_key"),
	}

	h.logger.Info("attaching node",
		"treeID", tree.TreeID(),
		"key", key,
		"parent", node.Parent,
	)

	if err := tree.SyncPosition(ctx, node); err != nil {
		return fmt.Errorf("attach %q: %w", key, err)
	}

	if node.Parent == "" && def.SingleRoot {
		if err := tree.EnforceSingleRoot(ctx); err != nil {
			// Policy violation, not interval corruption; the caller
			// decides whether to reparent or delete the extra root.
			h.logger.Warn("single-root policy violated",
				"treeID", tree.TreeID(),
				"key", key,
				"error", err,
			)
		}
	}
	return nil
}

// processModify relocates a node whose parent field changed. Bound-only
// writes (the engine's own side effects) change no parent and are
// skipped, which is what prevents the handler from feeding on itself.
func (h *Handler) processModify(ctx context.Context, tree *nestedset.Tree, record events.DynamoDBEventRecord, key string) error {
	oldParent := getStringAttr(record.Change.OldImage, "parent_key")
	newParent := getStringAttr(record.Change.NewImage, "parent_key")
	if oldParent == newParent {
		return nil
	}

	node := &nestedset.Node{
		Key:        key,
		Parent:     newParent,
		PrevParent: oldParent,
		Bounds: nestedset.Bounds{
			Left:  getNumberAttr(record.Change.NewImage, "lft"),
			Right: getNumberAttr(record.Change.NewImage, "rgt"),
		},
	}

	h.logger.Info("relocating node",
		"treeID", tree.TreeID(),
		"key", key,
		"oldParent", oldParent,
		"newParent", newParent,
	)

	if err := tree.SyncPosition(ctx, node); err != nil {
		return fmt.Errorf("relocate %q: %w", key, err)
	}
	return nil
}

// checkRemove flags a deletion that orphaned descendants. The engine
// never deletes rows; a row vanishing while its interval still spans a
// subtree means the caller skipped the detach protocol, and only a
// rebuild can repair the tree.
func (h *Handler) checkRemove(record events.DynamoDBEventRecord, treeID, key string) {
	lft := getNumberAttr(record.Change.OldImage, "lft")
	rgt := getNumberAttr(record.Change.OldImage, "rgt")
	if rgt-lft+1 > 2 {
		h.logger.Error("node removed with descendants still attached; rebuild required",
			"treeID", treeID,
			"key", key,
			"lft", lft,
			"rgt", rgt,
		)
	}
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeString {
			return v.String()
		}
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}
