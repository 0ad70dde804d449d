package dynastore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/arbor/nestedset"
)

// lease is the per-tree lock item.
type lease struct {
	PK        string `dynamodbav:"pk"`
	SK        string `dynamodbav:"sk"`
	Token     string `dynamodbav:"token"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
}

// WithinTree serializes structural operations per tree with a leased
// lock item. The lease carries a fencing token and an expiry, so a
// crashed holder blocks other writers only until LockTTL passes.
//
// Unlike a SQL transaction this provides serialization without rollback:
// if fn fails partway, the tree's intervals may be left inconsistent and
// Tree.Rebuild is the repair path. Callers that need strict atomicity
// should use a relational backend.
func (s *Store) WithinTree(ctx context.Context, treeID string, fn func(nestedset.Store) error) error {
	token, err := s.acquireLock(ctx, treeID)
	if err != nil {
		return err
	}
	defer s.releaseLock(context.WithoutCancel(ctx), treeID, token)

	return fn(s)
}

// acquireLock takes the per-tree lease, returning the fencing token.
// An unexpired lease held by someone else fails with ErrTreeLocked.
func (s *Store) acquireLock(ctx context.Context, treeID string) (string, error) {
	token := uuid.New().String()
	now := time.Now()

	item, err := attributevalue.MarshalMap(lease{
		PK:        treeID,
		SK:        lockSK,
		Token:     token,
		ExpiresAt: now.Add(s.config.LockTTL).Unix(),
	})
	if err != nil {
		return "", err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.config.NodeTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(sk) OR expires_at < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return "", fmt.Errorf("tree %q: %w", treeID, ErrTreeLocked)
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

// releaseLock drops the lease if we still hold it. A lease that expired
// and was taken over stays with its new holder, and any failure here
// heals itself when the lease expires.
func (s *Store) releaseLock(ctx context.Context, treeID, token string) {
	_, _ = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.NodeTable),
		Key:       s.nodeKey(treeID, lockSK),
		ConditionExpression: aws.String("#token = :token"),
		ExpressionAttributeNames: map[string]string{
			"#token": "token",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":token": &types.AttributeValueMemberS{Value: token},
		},
	})
}
