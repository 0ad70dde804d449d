// Package dynastore provides a DynamoDB nestedset.Store.
//
// Nodes live in one table keyed by (tree ID, node key), with two sparse
// GSIs over the interval bounds for ordered reads. A separate, optionally
// sharded children index table answers parent-key enumeration without
// scanning the tree partition.
//
// DynamoDB has no multi-item transactions wide enough for the interval
// engine's bulk updates, so WithinTree serializes structural operations
// with a per-tree lease instead of isolating them. A crashed operation
// leaves the lease to expire and the interval drift to Tree.Rebuild;
// see Store.WithinTree.
package dynastore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/arbor/internal/shard"
	"github.com/jacentio/arbor/nestedset"
)

// lockSK is the sort key of the per-tree lease item. Keys beginning with
// "#" are reserved; they never carry bounds and are skipped everywhere.
const lockSK = "#lock"

// Store provides DynamoDB-backed interval storage for the nestedset engine.
type Store struct {
	client *dynamodb.Client
	config Config
}

// New creates a new Store instance.
func New(client *dynamodb.Client, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

func (s *Store) nodeKey(treeID, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: treeID},
		"sk": &types.AttributeValueMemberS{Value: key},
	}
}

// Bounds returns a node's interval.
func (s *Store) Bounds(ctx context.Context, treeID, key string) (nestedset.Bounds, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.NodeTable),
		Key:       s.nodeKey(treeID, key),
	})
	if err != nil {
		return nestedset.Bounds{}, err
	}
	if result.Item == nil {
		return nestedset.Bounds{}, fmt.Errorf("node %q: %w", key, nestedset.ErrNotFound)
	}
	b, _ := itemBounds(result.Item)
	return b, nil
}

// SetBounds assigns a node's interval.
func (s *Store) SetBounds(ctx context.Context, treeID, key string, b nestedset.Bounds) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.config.NodeTable),
		Key:                 s.nodeKey(treeID, key),
		UpdateExpression:    aws.String("SET lft = :lft, rgt = :rgt, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lft": numberAttr(b.Left),
			":rgt": numberAttr(b.Right),
			":now": &types.AttributeValueMemberS{Value: nowISO()},
		},
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return fmt.Errorf("node %q: %w", key, nestedset.ErrNotFound)
	}
	return err
}

// UpdateBounds applies the rewrite to every node matching the predicate.
//
// DynamoDB cannot express arithmetic bulk updates, so the tree partition
// is read, matched client-side, and rewritten with per-item conditional
// updates pinned to the bounds that were read. A row changing underneath
// fails the condition and surfaces as ErrConcurrentModification; under
// the WithinTree lease that indicates an out-of-band writer.
func (s *Store) UpdateBounds(ctx context.Context, treeID string, where nestedset.Predicate, set nestedset.Update) error {
	rows, err := s.queryBounds(ctx, treeID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if !where.Match(row.bounds) {
			continue
		}
		next := set.Apply(row.bounds)
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(s.config.NodeTable),
			Key:                 s.nodeKey(treeID, row.key),
			UpdateExpression:    aws.String("SET lft = :lft, rgt = :rgt, updated_at = :now"),
			ConditionExpression: aws.String("lft = :old_lft AND rgt = :old_rgt"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":lft":     numberAttr(next.Left),
				":rgt":     numberAttr(next.Right),
				":old_lft": numberAttr(row.bounds.Left),
				":old_rgt": numberAttr(row.bounds.Right),
				":now":     &types.AttributeValueMemberS{Value: nowISO()},
			},
		})
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("node %q: %w", row.key, ErrConcurrentModification)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Enumerate returns matching keys ordered by the requested bound, via
// the lft or rgt GSI. The predicate is evaluated client-side while
// paginating; the limit applies to matched keys.
func (s *Store) Enumerate(ctx context.Context, treeID string, where nestedset.Predicate, order nestedset.Order, limit int) ([]string, error) {
	index := s.config.LeftIndex
	if order.Bound == nestedset.BoundRight {
		index = s.config.RightIndex
	}

	var keys []string
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.NodeTable),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: treeID},
		},
		ScanIndexForward: aws.Bool(!order.Desc),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			b, ok := itemBounds(item)
			if !ok || !where.Match(b) {
				continue
			}
			keys = append(keys, attrString(item, "sk"))
			if limit > 0 && len(keys) == limit {
				return keys, nil
			}
		}
	}
	return keys, nil
}

// Children returns the keys whose stored parent field equals parentKey,
// in stable lexicographic order, by fanning out over the children index
// shards.
func (s *Store) Children(ctx context.Context, treeID, parentKey string) ([]string, error) {
	numShards := s.config.NumShards
	if numShards < 1 {
		numShards = 1
	}

	// Fast path for single shard (default)
	if numShards == 1 {
		keys, err := s.childrenOfShard(ctx, shard.IndexShardPK(treeID, parentKey, 0))
		if err != nil {
			return nil, err
		}
		sort.Strings(keys)
		return keys, nil
	}

	// Multi-shard fan-out
	var mu sync.Mutex
	var allKeys []string
	var wg sync.WaitGroup
	errs := make(chan error, numShards)

	for shardNum := 0; shardNum < numShards; shardNum++ {
		wg.Add(1)
		go func(shardNum int) {
			defer wg.Done()

			keys, err := s.childrenOfShard(ctx, shard.IndexShardPK(treeID, parentKey, shardNum))
			if err != nil {
				errs <- fmt.Errorf("shard %02x: %w", shardNum, err)
				return
			}
			mu.Lock()
			allKeys = append(allKeys, keys...)
			mu.Unlock()
		}(shardNum)
	}

	go func() {
		wg.Wait()
		close(errs)
	}()

	for err := range errs {
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(allKeys)
	return allKeys, nil
}

func (s *Store) childrenOfShard(ctx context.Context, shardPK string) ([]string, error) {
	var keys []string
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.ChildIndexTable),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: shardPK},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			keys = append(keys, attrString(item, "sk"))
		}
	}
	return keys, nil
}

// MaxRight returns the maximum right bound over the tree, walking the
// rgt GSI from the top. With rootsOnly, rows with a non-empty parent are
// skipped while paginating.
func (s *Store) MaxRight(ctx context.Context, treeID string, rootsOnly bool) (int64, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.NodeTable),
		IndexName:              aws.String(s.config.RightIndex),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: treeID},
		},
		ScanIndexForward: aws.Bool(false),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		for _, item := range page.Items {
			if rootsOnly && attrString(item, "parent_key") != "" {
				continue
			}
			b, ok := itemBounds(item)
			if !ok {
				continue
			}
			return b.Right, nil
		}
	}
	return 0, nil
}

// --- row plumbing ---

type boundsRow struct {
	key    string
	bounds nestedset.Bounds
}

// queryBounds reads every node row of the tree partition with its
// current bounds. Reserved "#"-prefixed items are skipped.
func (s *Store) queryBounds(ctx context.Context, treeID string) ([]boundsRow, error) {
	var rows []boundsRow
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.NodeTable),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: treeID},
		},
		ProjectionExpression: aws.String("sk, lft, rgt"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			key := attrString(item, "sk")
			if key == "" || key[0] == '#' {
				continue
			}
			b, ok := itemBounds(item)
			if !ok {
				continue
			}
			rows = append(rows, boundsRow{key: key, bounds: b})
		}
	}
	return rows, nil
}

// itemBounds extracts the interval bounds from a node item. The second
// return is false when the item carries no bounds (e.g. the lease item).
func itemBounds(item map[string]types.AttributeValue) (nestedset.Bounds, bool) {
	lft, lok := attrNumber(item, "lft")
	rgt, rok := attrNumber(item, "rgt")
	if !lok || !rok {
		return nestedset.Bounds{}, false
	}
	return nestedset.Bounds{Left: lft, Right: rgt}, true
}

func attrString(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func attrNumber(item map[string]types.AttributeValue, name string) (int64, bool) {
	v, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func numberAttr(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

var (
	_ nestedset.Store = (*Store)(nil)
	_ nestedset.Txer  = (*Store)(nil)
)
