package migration

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/config"
)

type DynamoDBMigrator struct {
	db     dynamodbiface.DynamoDBAPI
	config *config.AWSConfig

	pollInterval time.Duration
	maxPolls     int
}

func NewDynamoDBMigrator(db dynamodbiface.DynamoDBAPI, cfg *config.AWSConfig) *DynamoDBMigrator {
	return &DynamoDBMigrator{
		db:           db,
		config:       cfg,
		pollInterval: 2 * time.Second,
		maxPolls:     30,
	}
}

type tableSpec struct {
	name     string
	hashKey  string
	rangeKey string
	// extra attribute definitions needed by secondary indexes
	indexes []indexSpec
}

type indexSpec struct {
	name     string
	hashKey  string
	rangeKey string
}

func (m *DynamoDBMigrator) tables() []tableSpec {
	return []tableSpec{
		{
			name:    m.config.StreamTable,
			hashKey: "id",
			indexes: []indexSpec{{name: "status-index", hashKey: "status"}},
		},
		// ULID ids sort chronologically, so the range key doubles as the time order.
		{name: m.config.MessageTable, hashKey: "stream_id", rangeKey: "id"},
		{
			name:     m.config.ClassifyTable,
			hashKey:  "stream_id",
			rangeKey: "id",
			indexes:  []indexSpec{{name: "stream-created-index", hashKey: "stream_id", rangeKey: "created_at"}},
		},
	}
}

// CreateTables creates every table the service needs, skipping the ones that exist.
func (m *DynamoDBMigrator) CreateTables(ctx context.Context) error {
	log.Println("🗄️ Starting DynamoDB table creation...")

	for _, spec := range m.tables() {
		if err := m.createTable(ctx, spec); err != nil {
			return fmt.Errorf("failed to create table %s: %w", spec.name, err)
		}
	}

	log.Println("✅ All DynamoDB tables ready")
	return nil
}

func (m *DynamoDBMigrator) createTable(ctx context.Context, spec tableSpec) error {
	_, err := m.db.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(spec.name),
	})
	if err == nil {
		log.Printf("Table %s already exists, skipping creation", spec.name)
		return nil
	}

	log.Printf("Creating table %s...", spec.name)

	attrs := map[string]bool{spec.hashKey: true}
	input := &dynamodb.CreateTableInput{
		TableName:   aws.String(spec.name),
		KeySchema:   keySchema(spec.hashKey, spec.rangeKey),
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
	}
	if spec.rangeKey != "" {
		attrs[spec.rangeKey] = true
	}
	for _, idx := range spec.indexes {
		attrs[idx.hashKey] = true
		if idx.rangeKey != "" {
			attrs[idx.rangeKey] = true
		}
		input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, &dynamodb.GlobalSecondaryIndex{
			IndexName: aws.String(idx.name),
			KeySchema: keySchema(idx.hashKey, idx.rangeKey),
			Projection: &dynamodb.Projection{
				ProjectionType: aws.String(dynamodb.ProjectionTypeAll),
			},
		})
	}
	for name := range attrs {
		input.AttributeDefinitions = append(input.AttributeDefinitions, &dynamodb.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: aws.String(dynamodb.ScalarAttributeTypeS),
		})
	}

	if _, err := m.db.CreateTableWithContext(ctx, input); err != nil {
		return err
	}

	return m.waitForTableActive(ctx, spec.name)
}

func keySchema(hashKey, rangeKey string) []*dynamodb.KeySchemaElement {
	schema := []*dynamodb.KeySchemaElement{
		{AttributeName: aws.String(hashKey), KeyType: aws.String(dynamodb.KeyTypeHash)},
	}
	if rangeKey != "" {
		schema = append(schema, &dynamodb.KeySchemaElement{
			AttributeName: aws.String(rangeKey),
			KeyType:       aws.String(dynamodb.KeyTypeRange),
		})
	}
	return schema
}

func (m *DynamoDBMigrator) waitForTableActive(ctx context.Context, tableName string) error {
	log.Printf("Waiting for table %s to become active...", tableName)

	for i := 0; i < m.maxPolls; i++ {
		resp, err := m.db.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(tableName),
		})
		if err != nil {
			return fmt.Errorf("failed to describe table %s: %w", tableName, err)
		}

		if aws.StringValue(resp.Table.TableStatus) == dynamodb.TableStatusActive {
			log.Printf("Table %s is now active", tableName)
			return nil
		}

		log.Printf("Table %s status: %s, waiting...", tableName, aws.StringValue(resp.Table.TableStatus))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}

	return fmt.Errorf("table %s did not become active within timeout", tableName)
}
