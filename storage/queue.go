package storage

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"schedule-board/domain"
)

// QueueExporter publishes every committed change to an Azure Storage queue
// for downstream consumers. Messages use the same frame as the event channel.
type QueueExporter struct {
	queue *azqueue.QueueClient
}

// NewQueueExporter creates an exporter for the named queue.
func NewQueueExporter(connStr, queueName string) (*QueueExporter, error) {
	if connStr == "" || queueName == "" {
		return nil, ErrNotConfigured
	}
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 30 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &QueueExporter{queue: q}, nil
}

// Apply enqueues the encoded frame of ev.
func (q *QueueExporter) Apply(ctx context.Context, ev domain.ChangeEvent) error {
	data, err := domain.EncodeFrame(ev)
	if err != nil {
		return err
	}
	_, err = q.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}
