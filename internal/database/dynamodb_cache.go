// Package database adapts the DynamoDB client into a networked cache.Backend
// for environments that don't want an in-process cache shared across
// Lambda invocations. It mirrors the teacher service's CRUD client: a
// single table, a plain (unconditional) put per write, and
// dynamodbattribute-based (un)marshaling.
package database

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"github.com/dexmeta/aggregator/internal/logger"
)

// cacheItem is the DynamoDB row shape: a hashed cache key, the opaque
// payload, and a TTL attribute DynamoDB itself expires rows against.
type cacheItem struct {
	CacheKey  string `dynamodbav:"cache_key"`
	Value     []byte `dynamodbav:"value"`
	ExpiresAt int64  `dynamodbav:"expires_at"` // unix seconds, DynamoDB TTL attribute
}

// DynamoCacheBackend implements cache.Backend against a single DynamoDB
// table whose TTL attribute is "expires_at".
type DynamoCacheBackend struct {
	svc       *dynamodb.DynamoDB
	tableName string
}

// NewDynamoCacheBackend opens a DynamoDB-backed cache backend. endpoint may
// be set to point at a local DynamoDB for development, exactly as the
// teacher's clients do.
func NewDynamoCacheBackend(region, tableName, endpoint string) (*DynamoCacheBackend, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, err
	}
	svc := dynamodb.New(sess)
	if endpoint != "" {
		svc.Endpoint = endpoint
	}
	return &DynamoCacheBackend{svc: svc, tableName: tableName}, nil
}

func (d *DynamoCacheBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"cache_key": {S: aws.String(key)},
		},
	}
	result, err := d.svc.GetItemWithContext(ctx, input)
	if err != nil {
		logger.Warn("cache backend read failed", logger.Fields{"error": err.Error(), "key": key})
		return nil, false, err
	}
	if result.Item == nil {
		return nil, false, nil
	}
	var item cacheItem
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return nil, false, err
	}
	if time.Now().Unix() >= item.ExpiresAt {
		// DynamoDB's TTL sweep is best-effort and lags real time; enforce
		// expiry on read too.
		return nil, false, nil
	}
	return item.Value, true, nil
}

func (d *DynamoCacheBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	item := cacheItem{
		CacheKey:  key,
		Value:     value,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	av, err := dynamodbattribute.MarshalMap(item)
	if err != nil {
		return err
	}
	input := &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      av,
	}
	_, err = d.svc.PutItemWithContext(ctx, input)
	if err != nil {
		logger.Warn("cache backend write failed", logger.Fields{"error": err.Error(), "key": key})
	}
	return err
}
