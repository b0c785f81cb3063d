package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"event-gamification-system/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAccomplishmentStore keeps award records in a single table with
// pk = user_id and sk = "<dedup key>#<seq>". The table has no
// cross-item transactions; every guarantee here rests on single-item
// conditional writes.
type DynamoAccomplishmentStore struct {
	Client *dynamodb.Client
	Table  string
}

func NewDynamoAccomplishmentStore(client *dynamodb.Client, table string) *DynamoAccomplishmentStore {
	return &DynamoAccomplishmentStore{Client: client, Table: table}
}

func accomplishmentSortKey(dedupKey string, seq int) string {
	return dedupKey + "#" + strconv.Itoa(seq)
}

// Create inserts the record with a conditional write on its sort key.
// Two concurrent claims computing the same (dedup key, seq) race on the
// condition and exactly one wins; the loser gets ErrDuplicate.
func (s *DynamoAccomplishmentStore) Create(ctx context.Context, acc *models.Accomplishment) error {
	item, err := attributevalue.MarshalMap(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal accomplishment: %w", err)
	}
	item["sk"] = &types.AttributeValueMemberS{Value: accomplishmentSortKey(acc.DedupKey, acc.Seq)}

	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.Table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(sk)"),
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create accomplishment: %w", err)
	}
	return nil
}

func (s *DynamoAccomplishmentStore) CountForUser(ctx context.Context, userID, dedupKey string) (int, error) {
	total := 0
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.Client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.Table),
			KeyConditionExpression: aws.String("user_id = :u AND begins_with(sk, :k)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":u": &types.AttributeValueMemberS{Value: userID},
				":k": &types.AttributeValueMemberS{Value: dedupKey + "#"},
			},
			Select:            types.SelectCount,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to count user records: %w", err)
		}
		total += int(out.Count)
		if out.LastEvaluatedKey == nil {
			return total, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// CountGlobal is a filtered scan. Acceptable on purpose: a code's total
// usage is bounded by event attendance.
func (s *DynamoAccomplishmentStore) CountGlobal(ctx context.Context, dedupKey string) (int, error) {
	total := 0
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.Client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.Table),
			FilterExpression: aws.String("dedup_key = :k"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":k": &types.AttributeValueMemberS{Value: dedupKey},
			},
			Select:            types.SelectCount,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to count records for key: %w", err)
		}
		total += int(out.Count)
		if out.LastEvaluatedKey == nil {
			return total, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (s *DynamoAccomplishmentStore) CountAllForUser(ctx context.Context, userID string) (int, error) {
	total := 0
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.Client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.Table),
			KeyConditionExpression: aws.String("user_id = :u"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":u": &types.AttributeValueMemberS{Value: userID},
			},
			Select:            types.SelectCount,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to count user accomplishments: %w", err)
		}
		total += int(out.Count)
		if out.LastEvaluatedKey == nil {
			return total, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (s *DynamoAccomplishmentStore) ListForUser(ctx context.Context, userID string) ([]models.Accomplishment, error) {
	var records []models.Accomplishment
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.Client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.Table),
			KeyConditionExpression: aws.String("user_id = :u"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":u": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list user accomplishments: %w", err)
		}
		var page []models.Accomplishment
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal accomplishments: %w", err)
		}
		records = append(records, page...)
		if out.LastEvaluatedKey == nil {
			return records, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (s *DynamoAccomplishmentStore) ListByType(ctx context.Context, typ models.AchievementType) ([]models.Accomplishment, error) {
	var records []models.Accomplishment
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.Client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.Table),
			FilterExpression: aws.String("#t = :t"),
			ExpressionAttributeNames: map[string]string{
				"#t": "type",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":t": &types.AttributeValueMemberS{Value: string(typ)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list accomplishments by type: %w", err)
		}
		var page []models.Accomplishment
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal accomplishments: %w", err)
		}
		records = append(records, page...)
		if out.LastEvaluatedKey == nil {
			return records, nil
		}
		startKey = out.LastEvaluatedKey
	}
}
