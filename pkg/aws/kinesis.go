package aws

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"
)

type KinesisClient struct {
	client     kinesisiface.KinesisAPI
	streamName string
}

func NewKinesisClient(region, streamName string) *KinesisClient {
	sess := session.Must(session.NewSession(&aws.Config{
		Region: aws.String(region),
	}))

	return NewKinesisClientWithAPI(kinesis.New(sess), streamName)
}

func NewKinesisClientWithAPI(api kinesisiface.KinesisAPI, streamName string) *KinesisClient {
	return &KinesisClient{
		client:     api,
		streamName: streamName,
	}
}

func (k *KinesisClient) StreamName() string {
	return k.streamName
}

// PutRecord writes one record; records sharing a partition key keep their order.
func (k *KinesisClient) PutRecord(ctx context.Context, partitionKey string, data []byte) error {
	if partitionKey == "" {
		partitionKey = "default"
	}
	input := &kinesis.PutRecordInput{
		Data:         data,
		PartitionKey: aws.String(partitionKey),
		StreamName:   aws.String(k.streamName),
	}

	result, err := k.client.PutRecordWithContext(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to put record to Kinesis: %w", err)
	}

	log.Printf("✅ Event published to Kinesis: %s", aws.StringValue(result.SequenceNumber))
	return nil
}
