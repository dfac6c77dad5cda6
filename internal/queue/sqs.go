// Package queue adapts the teacher's SQS client into the trigger mechanism
// for the scheduled cache-warmer: one message per catalog chain on each
// scheduled run, regardless of how close its cache entries are to expiry.
package queue

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"

	"github.com/dexmeta/aggregator/internal/apperror"
	"github.com/dexmeta/aggregator/internal/logger"
)

// WarmJob names a chain whose caches the worker should refresh ahead of
// TTL expiry.
type WarmJob struct {
	ChainID int64 `json:"chainId"`
}

// Client wraps an SQS queue used to schedule cache-warming work.
type Client struct {
	svc *sqs.SQS
}

// NewClient creates a new SQS client, optionally pointed at a local
// endpoint for development.
func NewClient(region, endpoint string) (*Client, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, err
	}

	svc := sqs.New(sess)
	if endpoint != "" {
		svc.Endpoint = endpoint
	}

	return &Client{svc: svc}, nil
}

// SendWarmJob enqueues a cache-warm request for a single chain.
func (c *Client) SendWarmJob(ctx context.Context, queueURL string, job WarmJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		logger.Error("failed to marshal warm job", logger.Fields{"error": err.Error()})
		return apperror.ProviderUnspecified("queue", "failed to marshal warm job", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]*sqs.MessageAttributeValue{
			"ChainID": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatInt(job.ChainID, 10)),
			},
		},
	}

	result, err := c.svc.SendMessageWithContext(ctx, input)
	if err != nil {
		logger.Error("failed to send warm job", logger.Fields{
			"error":    err.Error(),
			"chain_id": job.ChainID,
		})
		return apperror.ProviderUnspecified("queue", "failed to send warm job", err)
	}

	logger.Info("warm job sent", logger.Fields{
		"chain_id":   job.ChainID,
		"message_id": *result.MessageId,
	})
	return nil
}
