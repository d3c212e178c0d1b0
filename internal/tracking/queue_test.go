package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/studio-automation/internal/domain"
)

type fakeQueue struct {
	sent    []string
	inbox   []types.Message
	deleted []string
	recvErr error
}

func (q *fakeQueue) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	q.sent = append(q.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{}, nil
}

func (q *fakeQueue) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if q.recvErr != nil {
		return nil, q.recvErr
	}
	msgs := q.inbox
	q.inbox = nil
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (q *fakeQueue) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	q.deleted = append(q.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type eventLog struct {
	opens  map[string]time.Time
	clicks []string
	failOn string
}

func (e *eventLog) RecordOpenAt(_ context.Context, id string, at time.Time) error {
	if id == e.failOn {
		return errors.New("db down")
	}
	e.opens[id] = at
	return nil
}

func (e *eventLog) RecordClickAt(_ context.Context, id, url string, _ time.Time) error {
	e.clicks = append(e.clicks, id+" "+url)
	return nil
}

func TestPublisherQueuesEvents(t *testing.T) {
	q := &fakeQueue{}
	p := NewPublisher(q, "https://sqs.test/q")
	p.sync = true
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	require.NoError(t, p.RecordOpen(context.Background(), "tok-1"))
	require.NoError(t, p.RecordClick(context.Background(), "tok-1", "https://studio.test"))
	require.NoError(t, p.RecordOpen(context.Background(), ""))
	require.Len(t, q.sent, 2)

	var evt Event
	require.NoError(t, json.Unmarshal([]byte(q.sent[1]), &evt))
	assert.Equal(t, domain.EngagementClick, evt.Kind)
	assert.Equal(t, "https://studio.test", evt.URL)
	assert.Equal(t, fixed, evt.Timestamp)
}

func message(handle, body string) types.Message {
	return types.Message{ReceiptHandle: aws.String(handle), Body: aws.String(body)}
}

func TestConsumerRecordsAndDeletes(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	open, _ := json.Marshal(Event{Kind: domain.EngagementOpen, TrackingID: "tok-1", Timestamp: at})
	click, _ := json.Marshal(Event{Kind: domain.EngagementClick, TrackingID: "tok-1", URL: "https://studio.test", Timestamp: at})
	failing, _ := json.Marshal(Event{Kind: domain.EngagementOpen, TrackingID: "tok-bad", Timestamp: at})

	q := &fakeQueue{inbox: []types.Message{
		message("h1", string(open)),
		message("h2", string(click)),
		message("h3", "{not json"),
		message("h4", string(failing)),
	}}
	log := &eventLog{opens: map[string]time.Time{}, failOn: "tok-bad"}
	c := NewConsumer(q, "https://sqs.test/q", log)

	n, err := c.ReceiveOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, at, log.opens["tok-1"])
	assert.Equal(t, []string{"tok-1 https://studio.test"}, log.clicks)
	// failed events stay queued for redelivery
	assert.Equal(t, []string{"h1", "h2", "h3"}, q.deleted)
}

func TestConsumerReceiveError(t *testing.T) {
	q := &fakeQueue{recvErr: errors.New("throttled")}
	c := NewConsumer(q, "q", &eventLog{opens: map[string]time.Time{}})
	_, err := c.ReceiveOnce(context.Background())
	assert.Error(t, err)
}
