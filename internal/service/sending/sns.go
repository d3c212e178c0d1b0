package sending

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// SNSAPI is the subset of the SNS client used for direct-to-phone publishing.
type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender sends SMS by publishing directly to a phone number.
type SNSSender struct {
	client   SNSAPI
	senderID string
}

// NewSNSSender creates an SNS sender. senderID is optional and only
// honored in countries that support alphanumeric sender ids.
func NewSNSSender(client SNSAPI, senderID string) *SNSSender {
	return &SNSSender{client: client, senderID: senderID}
}

// SendSMS publishes one transactional message.
func (s *SNSSender) SendSMS(ctx context.Context, msg *domain.SMSMessage) (*domain.SendResult, error) {
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(s.senderID)}
	}

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(msg.To),
		Message:           aws.String(msg.Body),
		MessageAttributes: attrs,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("sns publish rejected", "record_id", msg.RecordID, "phone", msg.To, "error", err)
		return &domain.SendResult{Success: false, Error: err.Error()}, nil
	}
	return &domain.SendResult{Success: true, ProviderID: aws.ToString(out.MessageId), SentAt: time.Now().UTC()}, nil
}
