package tracking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// SQSSender is the subset of the SQS client the publisher uses.
type SQSSender interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher implements Recorder by queueing events to SQS. Sends happen in
// the background so the tracking response is never delayed.
type Publisher struct {
	client   SQSSender
	queueURL string
	now      func() time.Time
	sync     bool
}

func NewPublisher(client SQSSender, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL, now: time.Now}
}

func (p *Publisher) RecordOpen(ctx context.Context, trackingID string) error {
	p.Publish(ctx, Event{Kind: domain.EngagementOpen, TrackingID: trackingID, Timestamp: p.now().UTC()})
	return nil
}

func (p *Publisher) RecordClick(ctx context.Context, trackingID, url string) error {
	p.Publish(ctx, Event{Kind: domain.EngagementClick, TrackingID: trackingID, URL: url, Timestamp: p.now().UTC()})
	return nil
}

// Publish queues evt. Delivery errors are logged, not returned.
func (p *Publisher) Publish(ctx context.Context, evt Event) {
	if evt.TrackingID == "" {
		return
	}
	body, err := json.Marshal(evt)
	if err != nil {
		logger.Error("marshal tracking event", "error", err)
		return
	}

	send := func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			logger.Error("publish tracking event", "kind", string(evt.Kind), "tracking_id", evt.TrackingID, "error", err)
		}
	}
	if p.sync {
		send()
		return
	}
	go send()
}
