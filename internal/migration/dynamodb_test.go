package migration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/config"
)

// fakeDynamo knows a fixed set of tables; created tables become active on the second describe.
type fakeDynamo struct {
	dynamodbiface.DynamoDBAPI
	existing  map[string]bool
	created   map[string]*dynamodb.CreateTableInput
	describes map[string]int
}

func newFakeDynamo(existing ...string) *fakeDynamo {
	f := &fakeDynamo{
		existing:  map[string]bool{},
		created:   map[string]*dynamodb.CreateTableInput{},
		describes: map[string]int{},
	}
	for _, name := range existing {
		f.existing[name] = true
	}
	return f
}

func (f *fakeDynamo) DescribeTableWithContext(_ aws.Context, in *dynamodb.DescribeTableInput, _ ...request.Option) (*dynamodb.DescribeTableOutput, error) {
	name := aws.StringValue(in.TableName)
	if f.existing[name] {
		return &dynamodb.DescribeTableOutput{Table: &dynamodb.TableDescription{
			TableName:   in.TableName,
			TableStatus: aws.String(dynamodb.TableStatusActive),
		}}, nil
	}
	if _, ok := f.created[name]; !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	f.describes[name]++
	status := dynamodb.TableStatusCreating
	if f.describes[name] > 1 {
		status = dynamodb.TableStatusActive
	}
	return &dynamodb.DescribeTableOutput{Table: &dynamodb.TableDescription{
		TableName:   in.TableName,
		TableStatus: aws.String(status),
	}}, nil
}

func (f *fakeDynamo) CreateTableWithContext(_ aws.Context, in *dynamodb.CreateTableInput, _ ...request.Option) (*dynamodb.CreateTableOutput, error) {
	f.created[aws.StringValue(in.TableName)] = in
	return &dynamodb.CreateTableOutput{}, nil
}

func testAWSConfig() *config.AWSConfig {
	return &config.AWSConfig{
		StreamTable:   "streams",
		MessageTable:  "messages",
		ClassifyTable: "classifications",
	}
}

func TestCreateTablesSkipsExisting(t *testing.T) {
	db := newFakeDynamo("streams")
	m := NewDynamoDBMigrator(db, testAWSConfig())
	m.pollInterval = time.Millisecond

	require.NoError(t, m.CreateTables(context.Background()))

	assert.NotContains(t, db.created, "streams")
	require.Contains(t, db.created, "messages")
	require.Contains(t, db.created, "classifications")

	messages := db.created["messages"]
	require.Len(t, messages.KeySchema, 2)
	assert.Equal(t, "stream_id", aws.StringValue(messages.KeySchema[0].AttributeName))
	assert.Equal(t, "id", aws.StringValue(messages.KeySchema[1].AttributeName))

	classifications := db.created["classifications"]
	require.Len(t, classifications.GlobalSecondaryIndexes, 1)
	assert.Len(t, classifications.AttributeDefinitions, 3)
}

func TestCreateTablesTimesOut(t *testing.T) {
	db := newFakeDynamo()
	m := NewDynamoDBMigrator(db, testAWSConfig())
	m.pollInterval = time.Millisecond
	m.maxPolls = 1

	err := m.CreateTables(context.Background())
	assert.ErrorContains(t, err, "did not become active")
}
