package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"board-api/domain"
)

// queueClient is the subset of the azqueue client the mirror needs.
type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// AuditQueue forwards audit events to an Azure Storage queue for external
// consumers (exports, alerting). Delivery is at-least-once; every message
// carries the event key so consumers deduplicate on read.
type AuditQueue struct {
	queue queueClient
}

// auditMessage is the queue payload envelope.
type auditMessage struct {
	EventKey string            `json:"eventKey"`
	Event    domain.AuditEvent `json:"event"`
}

// NewAuditQueue connects to the queue named by queueName.
func NewAuditQueue(connStr, queueName string) (*AuditQueue, error) {
	clientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &clientOptions)
	if err != nil {
		return nil, fmt.Errorf("queue client: %w", err)
	}
	return &AuditQueue{queue: q}, nil
}

// EnqueueAuditEvent publishes one event to the queue.
func (q *AuditQueue) EnqueueAuditEvent(ctx context.Context, e domain.AuditEvent) error {
	data, err := json.Marshal(auditMessage{EventKey: e.Key(), Event: e})
	if err != nil {
		return fmt.Errorf("marshal audit message: %w", err)
	}
	if _, err := q.queue.EnqueueMessage(ctx, string(data), nil); err != nil {
		return fmt.Errorf("enqueue audit event: %w", err)
	}
	return nil
}
