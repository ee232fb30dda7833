package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"loxvm/internal/chunk"
)

// dynamoItem mirrors the single-table record layout: Key is the
// partition key, Chunk the gob-encoded payload. Each Get/Put call is
// separately stamped with a request ID for the debug log only; it is
// never stored in the item itself.
type dynamoItem struct {
	Key   string `dynamodbav:"key"`
	Chunk []byte `dynamodbav:"chunk"`
}

// DynamoDBBackend is the remote cache backend: one table, partition
// key "key", shared by every process pointed at the same table name.
type DynamoDBBackend struct {
	client *dynamodb.Client
	table  string
	logger *logrus.Logger
}

// NewDynamoDBBackend loads AWS config the default way (environment,
// shared config file, EC2/ECS role) and targets table.
func NewDynamoDBBackend(ctx context.Context, table string, logger *logrus.Logger) (*DynamoDBBackend, error) {
	if table == "" {
		return nil, errNoTable
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("cache: load aws config: %w", err)
	}
	return &DynamoDBBackend{
		client: dynamodb.NewFromConfig(cfg),
		table:  table,
		logger: logger,
	}, nil
}

func (b *DynamoDBBackend) Get(ctx context.Context, key string) (*chunk.Chunk, bool, error) {
	requestID := uuid.New()
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.table),
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("cache: dynamodb get %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, false, fmt.Errorf("cache: unmarshal %s: %w", key, err)
	}

	c, err := chunk.Decode(item.Chunk)
	if err != nil {
		return nil, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	if b.logger != nil {
		b.logger.WithFields(logrus.Fields{"key": key, "request_id": requestID}).
			Debugf("cache hit, %s", humanize.Bytes(uint64(len(item.Chunk))))
	}
	return c, true, nil
}

func (b *DynamoDBBackend) Put(ctx context.Context, key string, c *chunk.Chunk) error {
	requestID := uuid.New()
	data, err := c.Encode()
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}

	av, err := attributevalue.MarshalMap(dynamoItem{Key: key, Chunk: data})
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}

	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("cache: dynamodb put %s: %w", key, err)
	}
	if b.logger != nil {
		b.logger.WithFields(logrus.Fields{"key": key, "request_id": requestID}).
			Debugf("cache store, %s", humanize.Bytes(uint64(len(data))))
	}
	return nil
}

func (b *DynamoDBBackend) Close() error { return nil }

var errNoTable = errors.New("cache: dynamodb backend requires a table name")

var _ Backend = (*DynamoDBBackend)(nil)
