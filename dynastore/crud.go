package dynastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/arbor/internal/shard"
	"github.com/jacentio/arbor/nestedset"
)

// Put creates a node record with unpositioned bounds, atomically with
// its children index row. A non-empty parent must already exist; the
// whole transaction fails with ErrParentNotFound otherwise.
func (s *Store) Put(ctx context.Context, treeID, key, parentKey string) error {
	now := nowISO()
	items := []types.TransactWriteItem{}

	// Track item indices for error mapping
	parentCheckIndex := -1
	nodePutIndex := -1

	if parentKey != "" {
		parentCheckIndex = len(items)
		items = append(items, types.TransactWriteItem{
			ConditionCheck: &types.ConditionCheck{
				TableName:           aws.String(s.config.NodeTable),
				Key:                 s.nodeKey(treeID, parentKey),
				ConditionExpression: aws.String("attribute_exists(sk)"),
			},
		})
	}

	nodePutIndex = len(items)
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(s.config.NodeTable),
			Item: map[string]types.AttributeValue{
				"pk":         &types.AttributeValueMemberS{Value: treeID},
				"sk":         &types.AttributeValueMemberS{Value: key},
				"parent_key": &types.AttributeValueMemberS{Value: parentKey},
				"lft":        numberAttr(0),
				"rgt":        numberAttr(0),
				"created_at": &types.AttributeValueMemberS{Value: now},
				"updated_at": &types.AttributeValueMemberS{Value: now},
			},
			ConditionExpression: aws.String("attribute_not_exists(sk)"),
		},
	})

	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(s.config.ChildIndexTable),
			Item:      s.childIndexItem(treeID, key, parentKey),
		},
	})

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})

	return mapPutTransactionError(err, parentCheckIndex, nodePutIndex)
}

// SetParent rewrites a node's stored parent field and relinks its
// children index row, transactionally. It does not touch the interval
// bounds; run Tree.SyncPosition afterwards.
func (s *Store) SetParent(ctx context.Context, treeID, key, parentKey string) error {
	oldParent, err := s.Parent(ctx, treeID, key)
	if err != nil {
		return err
	}
	if oldParent == parentKey {
		return nil
	}

	items := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName:        aws.String(s.config.NodeTable),
				Key:              s.nodeKey(treeID, key),
				UpdateExpression: aws.String("SET parent_key = :parent, updated_at = :now"),
				// Pin the parent we read; a concurrent reparent loses.
				ConditionExpression: aws.String("parent_key = :old_parent"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":parent":     &types.AttributeValueMemberS{Value: parentKey},
					":old_parent": &types.AttributeValueMemberS{Value: oldParent},
					":now":        &types.AttributeValueMemberS{Value: nowISO()},
				},
			},
		},
		{
			Delete: &types.Delete{
				TableName: aws.String(s.config.ChildIndexTable),
				Key: map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: shard.ChildIndexPK(treeID, oldParent, key, s.config.NumShards)},
					"sk": &types.AttributeValueMemberS{Value: key},
				},
			},
		},
		{
			Put: &types.Put{
				TableName: aws.String(s.config.ChildIndexTable),
				Item:      s.childIndexItem(treeID, key, parentKey),
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for _, reason := range txErr.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return fmt.Errorf("node %q: %w", key, ErrConcurrentModification)
			}
		}
	}
	return err
}

// Parent returns a node's stored parent field.
func (s *Store) Parent(ctx context.Context, treeID, key string) (string, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.NodeTable),
		Key:       s.nodeKey(treeID, key),
	})
	if err != nil {
		return "", err
	}
	if result.Item == nil {
		return "", fmt.Errorf("node %q: %w", key, nestedset.ErrNotFound)
	}
	return attrString(result.Item, "parent_key"), nil
}

// Remove deletes a node record and its children index row. The interval
// engine never does this itself; callers detach via Tree.Remove first.
func (s *Store) Remove(ctx context.Context, treeID, key string) error {
	parentKey, err := s.Parent(ctx, treeID, key)
	if err != nil {
		return err
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Delete: &types.Delete{
					TableName: aws.String(s.config.NodeTable),
					Key:       s.nodeKey(treeID, key),
				},
			},
			{
				Delete: &types.Delete{
					TableName: aws.String(s.config.ChildIndexTable),
					Key: map[string]types.AttributeValue{
						"pk": &types.AttributeValueMemberS{Value: shard.ChildIndexPK(treeID, parentKey, key, s.config.NumShards)},
						"sk": &types.AttributeValueMemberS{Value: key},
					},
				},
			},
		},
	})
	return err
}

func (s *Store) childIndexItem(treeID, key, parentKey string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk":         &types.AttributeValueMemberS{Value: shard.ChildIndexPK(treeID, parentKey, key, s.config.NumShards)},
		"sk":         &types.AttributeValueMemberS{Value: key},
		"tree_id":    &types.AttributeValueMemberS{Value: treeID},
		"parent_key": &types.AttributeValueMemberS{Value: parentKey},
	}
}

// mapPutTransactionError maps DynamoDB transaction errors for Put operations.
// parentCheckIndex is the index of the parent check item (-1 if none).
// nodePutIndex is the index of the node put item.
func mapPutTransactionError(err error, parentCheckIndex, nodePutIndex int) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				if i == parentCheckIndex {
					return ErrParentNotFound
				}
				if i == nodePutIndex {
					return ErrAlreadyExists
				}
			}
		}
	}

	return err
}
