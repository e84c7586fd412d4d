package repository

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/dynamodb/expression"
	"github.com/cenkalti/backoff/v4"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/config"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/models"
)

const (
	// batchWriteLimit is the DynamoDB cap on requests per BatchWriteItem call.
	batchWriteLimit = 25
	// unprocessedRetries bounds how often throttled batch items are resent.
	unprocessedRetries = 5
)

type DynamoDBRepository struct {
	client        dynamodbiface.DynamoDBAPI
	streamTable   string
	messageTable  string
	classifyTable string
	retryInterval time.Duration
}

func NewDynamoDBRepository(cfg config.AWSConfig) (*DynamoDBRepository, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	// DynamoDB Local for development
	if cfg.DynamoDBEndpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.DynamoDBEndpoint)
		log.Printf("🔧 Using DynamoDB endpoint: %s", cfg.DynamoDBEndpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewDynamoDBRepositoryWithClient(dynamodb.New(sess), cfg), nil
}

func NewDynamoDBRepositoryWithClient(client dynamodbiface.DynamoDBAPI, cfg config.AWSConfig) *DynamoDBRepository {
	return &DynamoDBRepository{
		client:        client,
		streamTable:   cfg.StreamTable,
		messageTable:  cfg.MessageTable,
		classifyTable: cfg.ClassifyTable,
		retryInterval: 50 * time.Millisecond,
	}
}

// Client exposes the raw client for the table migrator.
func (r *DynamoDBRepository) Client() dynamodbiface.DynamoDBAPI {
	return r.client
}

func (r *DynamoDBRepository) Ping(ctx context.Context) error {
	_, err := r.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(r.streamTable),
	})
	return err
}

func (r *DynamoDBRepository) Close() error { return nil }

func (r *DynamoDBRepository) CreateStream(ctx context.Context, stream *models.Stream) error {
	item, err := dynamodbattribute.MarshalMap(stream)
	if err != nil {
		return fmt.Errorf("failed to marshal stream: %w", err)
	}

	_, err = r.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.streamTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put stream item: %w", err)
	}

	log.Printf("✅ Stream created in DynamoDB: %s", stream.ID)
	return nil
}

func (r *DynamoDBRepository) GetStream(ctx context.Context, streamID string) (*models.Stream, error) {
	result, err := r.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.streamTable),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(streamID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var stream models.Stream
	if err := dynamodbattribute.UnmarshalMap(result.Item, &stream); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stream: %w", err)
	}
	return &stream, nil
}

func (r *DynamoDBRepository) ListStreamsByStatus(ctx context.Context, status models.StreamStatus) ([]*models.Stream, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("status").Equal(expression.Value(string(status)))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}

	var streams []*models.Stream
	err = r.client.QueryPagesWithContext(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.streamTable),
		IndexName:                 aws.String("status-index"),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		for _, item := range page.Items {
			var stream models.Stream
			if err := dynamodbattribute.UnmarshalMap(item, &stream); err != nil {
				log.Printf("⚠️ Failed to unmarshal stream: %v", err)
				continue
			}
			streams = append(streams, &stream)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query streams by status: %w", err)
	}
	return streams, nil
}

func (r *DynamoDBRepository) UpdateStream(ctx context.Context, stream *models.Stream) error {
	item, err := dynamodbattribute.MarshalMap(stream)
	if err != nil {
		return fmt.Errorf("failed to marshal stream: %w", err)
	}

	_, err = r.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.streamTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to update stream item: %w", err)
	}
	return nil
}

func (r *DynamoDBRepository) SetViewerCount(ctx context.Context, streamID string, count int) error {
	update := expression.
		Set(expression.Name("viewer_count"), expression.Value(count)).
		Set(expression.Name("updated_at"), expression.Value(time.Now().UTC().Format(time.RFC3339Nano)))
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name("id"))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build update expression: %w", err)
	}

	_, err = r.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.streamTable),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(streamID)},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("failed to set viewer count: %w", err)
	}
	return nil
}

func (r *DynamoDBRepository) CreateMessage(ctx context.Context, message *models.ChatMessage) error {
	item, err := dynamodbattribute.MarshalMap(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = r.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.messageTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put message item: %w", err)
	}
	return nil
}

func (r *DynamoDBRepository) queryByStream(ctx context.Context, table, streamID string, forward bool, limit int, fn func(map[string]*dynamodb.AttributeValue)) error {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("stream_id").Equal(expression.Value(streamID))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build key condition: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(forward),
	}

	seen := 0
	return r.client.QueryPagesWithContext(ctx, input, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		for _, item := range page.Items {
			fn(item)
			seen++
			if limit > 0 && seen >= limit {
				return false
			}
		}
		return true
	})
}

func (r *DynamoDBRepository) ListMessages(ctx context.Context, streamID string) ([]*models.ChatMessage, error) {
	messages := []*models.ChatMessage{}
	err := r.queryByStream(ctx, r.messageTable, streamID, true, 0, func(item map[string]*dynamodb.AttributeValue) {
		var message models.ChatMessage
		if err := dynamodbattribute.UnmarshalMap(item, &message); err != nil {
			return // Skip invalid items
		}
		messages = append(messages, &message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return messages, nil
}

func (r *DynamoDBRepository) DeleteMessages(ctx context.Context, streamID string) (int64, error) {
	var keys []map[string]*dynamodb.AttributeValue
	err := r.queryByStream(ctx, r.messageTable, streamID, true, 0, func(item map[string]*dynamodb.AttributeValue) {
		keys = append(keys, map[string]*dynamodb.AttributeValue{
			"stream_id": item["stream_id"],
			"id":        item["id"],
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query messages for delete: %w", err)
	}

	var deleted int64
	for start := 0; start < len(keys); start += batchWriteLimit {
		end := start + batchWriteLimit
		if end > len(keys) {
			end = len(keys)
		}

		requests := make([]*dynamodb.WriteRequest, 0, end-start)
		for _, key := range keys[start:end] {
			requests = append(requests, &dynamodb.WriteRequest{
				DeleteRequest: &dynamodb.DeleteRequest{Key: key},
			})
		}

		if err := r.batchWrite(ctx, map[string][]*dynamodb.WriteRequest{r.messageTable: requests}); err != nil {
			return deleted, err
		}
		deleted += int64(end - start)
	}

	return deleted, nil
}

// batchWrite sends requests and resends whatever DynamoDB reports as unprocessed, backing off between rounds.
func (r *DynamoDBRepository) batchWrite(ctx context.Context, pending map[string][]*dynamodb.WriteRequest) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.retryInterval
	b.MaxElapsedTime = 0

	op := func() error {
		out, err := r.client.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to batch write: %w", err))
		}
		pending = out.UnprocessedItems
		if n := countRequests(pending); n > 0 {
			return fmt.Errorf("%d batch write requests left unprocessed", n)
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Printf("⚠️ DynamoDB batch write: %v, retrying in %s", err, wait)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, unprocessedRetries), ctx)
	return backoff.RetryNotify(op, policy, notify)
}

func countRequests(items map[string][]*dynamodb.WriteRequest) int {
	n := 0
	for _, requests := range items {
		n += len(requests)
	}
	return n
}

func (r *DynamoDBRepository) CreateClassification(ctx context.Context, c *models.Classification) error {
	item, err := dynamodbattribute.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("failed to marshal classification: %w", err)
	}

	_, err = r.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.classifyTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put classification item: %w", err)
	}
	return nil
}

func (r *DynamoDBRepository) ListClassifications(ctx context.Context, streamID string, limit int) ([]*models.Classification, error) {
	records := []*models.Classification{}
	err := r.queryByStream(ctx, r.classifyTable, streamID, false, 0, func(item map[string]*dynamodb.AttributeValue) {
		var c models.Classification
		if err := dynamodbattribute.UnmarshalMap(item, &c); err != nil {
			return
		}
		records = append(records, &c)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query classifications: %w", err)
	}

	// uuid range keys are not time ordered
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
