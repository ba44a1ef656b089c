package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func init() {
	Register("dynamodb", func(ctx context.Context, params Params) (Store, error) {
		return NewDynamoStore(ctx,
			params.String("table", "haste"),
			params.String("region", ""),
			params.String("endpoint", ""),
		)
	})
}

const (
	// dynamoRecentIndex is a global secondary index with partition key
	// "listing" (always dynamoListing) and sort key "created_at".
	dynamoRecentIndex = "recent"
	dynamoListing     = "documents"
)

// DynamoStore implements Store using DynamoDB. The table is keyed by "id"
// and should have TTL enabled on the "ttl" attribute.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewDynamoStore creates a new DynamoDB storage backend. An empty region
// defers to the default AWS configuration chain.
func NewDynamoStore(ctx context.Context, tableName, region, endpoint string) (*DynamoStore, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}, nil
}

// Set writes the item only if no item with the same id exists
func (d *DynamoStore) Set(ctx context.Context, doc *Document) error {
	doc.normalize()
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                documentToItem(doc),
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrKeyExists
		}
		return err
	}
	return nil
}

// Get retrieves a document by its key
func (d *DynamoStore) Get(ctx context.Context, key string, skipExpire bool) (*Document, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            dynamoKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}
	return expireOnRead(ctx, d, itemToDocument(result.Item), skipExpire)
}

// Delete removes a document, failing when it does not exist
func (d *DynamoStore) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 dynamoKey(key),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// ListRecent queries the recent index in descending created_at order
func (d *DynamoStore) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	out := make([]Summary, 0, limit)
	if limit <= 0 {
		return out, nil
	}
	now := time.Now()
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		IndexName:              aws.String(dynamoRecentIndex),
		KeyConditionExpression: aws.String("listing = :l"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":l": &types.AttributeValueMemberS{Value: dynamoListing},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}
	for len(out) < limit {
		result, err := d.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		for _, item := range result.Items {
			doc := itemToDocument(item)
			if doc.Expired(now) || len(out) >= limit {
				continue
			}
			out = append(out, doc.Summary())
		}
		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return out, nil
}

// Close is a no-op for DynamoDB
func (d *DynamoStore) Close() error {
	return nil
}

func dynamoKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: key},
	}
}

// documentToItem converts a Document to a DynamoDB item. Timestamps are
// unix nanoseconds except "ttl", which DynamoDB requires in seconds.
func documentToItem(doc *Document) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"id":              &types.AttributeValueMemberS{Value: doc.Key},
		"listing":         &types.AttributeValueMemberS{Value: dynamoListing},
		"created_at":      &types.AttributeValueMemberN{Value: strconv.FormatInt(doc.CreatedAt.UnixNano(), 10)},
		"size":            &types.AttributeValueMemberN{Value: strconv.FormatInt(doc.Size, 10)},
		"mimetype":        &types.AttributeValueMemberS{Value: doc.MimeType},
		"skip_expire":     &types.AttributeValueMemberBOOL{Value: doc.SkipExpire},
		"burn_after_read": &types.AttributeValueMemberBOOL{Value: doc.BurnAfterRead},
		"content":         &types.AttributeValueMemberB{Value: doc.Content},
	}
	if doc.Syntax != "" {
		item["syntax"] = &types.AttributeValueMemberS{Value: doc.Syntax}
	}

	// Add TTL if expires_at is set
	if doc.ExpiresAt != nil {
		item["expires_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(doc.ExpiresAt.UnixNano(), 10)}
		item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(doc.ExpiresAt.Unix(), 10)}
	}
	return item
}

// itemToDocument converts a DynamoDB item to a Document
func itemToDocument(item map[string]types.AttributeValue) *Document {
	doc := &Document{}

	if id, ok := item["id"].(*types.AttributeValueMemberS); ok {
		doc.Key = id.Value
	}

	if createdAt, ok := item["created_at"].(*types.AttributeValueMemberN); ok {
		if n, err := strconv.ParseInt(createdAt.Value, 10, 64); err == nil {
			doc.CreatedAt = time.Unix(0, n).UTC()
		}
	}

	if expiresAt, ok := item["expires_at"].(*types.AttributeValueMemberN); ok {
		if n, err := strconv.ParseInt(expiresAt.Value, 10, 64); err == nil {
			expiry := time.Unix(0, n).UTC()
			doc.ExpiresAt = &expiry
		}
	}

	if size, ok := item["size"].(*types.AttributeValueMemberN); ok {
		if s, err := strconv.ParseInt(size.Value, 10, 64); err == nil {
			doc.Size = s
		}
	}

	if mimeType, ok := item["mimetype"].(*types.AttributeValueMemberS); ok {
		doc.MimeType = mimeType.Value
	}

	if syntax, ok := item["syntax"].(*types.AttributeValueMemberS); ok {
		doc.Syntax = syntax.Value
	}

	if skip, ok := item["skip_expire"].(*types.AttributeValueMemberBOOL); ok {
		doc.SkipExpire = skip.Value
	}

	if burn, ok := item["burn_after_read"].(*types.AttributeValueMemberBOOL); ok {
		doc.BurnAfterRead = burn.Value
	}

	if content, ok := item["content"].(*types.AttributeValueMemberB); ok {
		doc.Content = content.Value
		doc.Size = int64(len(content.Value))
	}

	return doc
}
