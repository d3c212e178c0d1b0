package tracking

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// SQSReceiver is the subset of the SQS client the consumer uses.
type SQSReceiver interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Consumer drains the tracking queue into an EventRecorder. Messages are
// deleted only after they were recorded; malformed messages are dropped.
type Consumer struct {
	client   SQSReceiver
	queueURL string
	rec      EventRecorder
	waitTime int32

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer(client SQSReceiver, queueURL string, rec EventRecorder) *Consumer {
	return &Consumer{client: client, queueURL: queueURL, rec: rec, waitTime: 20}
}

func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	logger.Info("tracking consumer started", "queue", c.queueURL)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.poll(ctx)
	}()
}

func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Consumer) poll(ctx context.Context) {
	for ctx.Err() == nil {
		if _, err := c.ReceiveOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("tracking queue receive", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}
}

// ReceiveOnce handles one batch and returns how many events were recorded.
func (c *Consumer) ReceiveOnce(ctx context.Context) (int, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     c.waitTime,
	})
	if err != nil {
		return 0, err
	}

	recorded := 0
	for _, msg := range out.Messages {
		var evt Event
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &evt); err != nil {
			logger.Warn("dropping malformed tracking message", "error", err)
			c.deleteMessage(ctx, msg.ReceiptHandle)
			continue
		}
		if err := c.process(ctx, evt); err != nil {
			// left on the queue for redelivery
			logger.Error("tracking event failed", "kind", string(evt.Kind), "tracking_id", evt.TrackingID, "error", err)
			continue
		}
		recorded++
		c.deleteMessage(ctx, msg.ReceiptHandle)
	}
	return recorded, nil
}

func (c *Consumer) process(ctx context.Context, evt Event) error {
	switch evt.Kind {
	case domain.EngagementOpen:
		return c.rec.RecordOpenAt(ctx, evt.TrackingID, evt.Timestamp)
	case domain.EngagementClick:
		return c.rec.RecordClickAt(ctx, evt.TrackingID, evt.URL, evt.Timestamp)
	default:
		logger.Warn("unknown tracking event kind", "kind", string(evt.Kind))
		return nil
	}
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	}); err != nil {
		logger.Warn("delete tracking message", "error", err)
	}
}
