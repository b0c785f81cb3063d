package stores

import (
	"context"
	"errors"
	"fmt"
	"log"

	"event-gamification-system/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoUserStore keeps participant records keyed by user id, with a
// GSI on share_hash for reverse lookup of connect codes.
type DynamoUserStore struct {
	Client         *dynamodb.Client
	Table          string
	ShareHashIndex string
}

func NewDynamoUserStore(client *dynamodb.Client, table string) *DynamoUserStore {
	return &DynamoUserStore{Client: client, Table: table, ShareHashIndex: "share_hash-index"}
}

func (s *DynamoUserStore) Get(ctx context.Context, id string) (*models.Participant, error) {
	out, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.Table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var p models.Participant
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participant: %w", err)
	}
	return &p, nil
}

func (s *DynamoUserStore) GetByShareHash(ctx context.Context, hash string) (*models.Participant, error) {
	out, err := s.Client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.Table),
		IndexName:              aws.String(s.ShareHashIndex),
		KeyConditionExpression: aws.String("share_hash = :h"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":h": &types.AttributeValueMemberS{Value: hash},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by share hash: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, ErrNotFound
	}
	var p models.Participant
	if err := attributevalue.UnmarshalMap(out.Items[0], &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participant: %w", err)
	}
	return &p, nil
}

// Ensure creates the record on first contact with a conditional put, so
// two concurrent first claims agree on a single record.
func (s *DynamoUserStore) Ensure(ctx context.Context, id, email string) (*models.Participant, error) {
	fresh := models.NewParticipant(id, email)
	item, err := attributevalue.MarshalMap(fresh)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal participant: %w", err)
	}

	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.Table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return s.Get(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}
	log.Printf("👤 [USERS] Created participant record for %s", id)
	return fresh, nil
}

// DecrementQuota is the atomic decrement-if-positive write. A counter
// at zero fails the condition and nothing is written.
func (s *DynamoUserStore) DecrementQuota(ctx context.Context, userID, counter string) (int, error) {
	out, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.Table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression:    aws.String("SET quotas.#c = quotas.#c - :one"),
		ConditionExpression: aws.String("quotas.#c > :zero"),
		ExpressionAttributeNames: map[string]string{
			"#c": counter,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":  &types.AttributeValueMemberN{Value: "1"},
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return 0, ErrQuotaEmpty
	}
	if err != nil {
		return 0, fmt.Errorf("failed to decrement quota %s: %w", counter, err)
	}

	var p models.Participant
	if err := attributevalue.UnmarshalMap(out.Attributes, &p); err != nil {
		return 0, fmt.Errorf("failed to unmarshal updated participant: %w", err)
	}
	return p.QuotaRemaining(counter), nil
}

// ResetQuota scans all participants and writes the counter back to the
// given value. Only the scheduled reset job calls this; attendance
// bounds the scan.
func (s *DynamoUserStore) ResetQuota(ctx context.Context, counter string, value int) (int, error) {
	touched := 0
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.Client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(s.Table),
			ProjectionExpression: aws.String("id"),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return touched, fmt.Errorf("failed to scan participants: %w", err)
		}
		for _, item := range out.Items {
			idAttr, ok := item["id"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			_, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
				TableName: aws.String(s.Table),
				Key: map[string]types.AttributeValue{
					"id": &types.AttributeValueMemberS{Value: idAttr.Value},
				},
				UpdateExpression: aws.String("SET quotas.#c = :v"),
				ExpressionAttributeNames: map[string]string{
					"#c": counter,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":v": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", value)},
				},
			})
			if err != nil {
				log.Printf("[USERS] Failed to reset %s for %s: %v", counter, idAttr.Value, err)
				continue
			}
			touched++
		}
		if out.LastEvaluatedKey == nil {
			return touched, nil
		}
		startKey = out.LastEvaluatedKey
	}
}
