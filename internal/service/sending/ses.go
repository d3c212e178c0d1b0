package sending

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// SESAPI is the subset of the SES v2 client used for sending.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends email through AWS SES v2.
type SESSender struct {
	client    SESAPI
	configSet string
}

// NewSESSender creates an SES sender. configSet may be empty.
func NewSESSender(client SESAPI, configSet string) *SESSender {
	return &SESSender{client: client, configSet: configSet}
}

// SendEmail delivers one message. SES API errors are reported as a failed
// SendResult since they carry the provider's rejection reason.
func (s *SESSender) SendEmail(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(formatAddress(msg.FromName, msg.FromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(tagValue(msg.CampaignID))},
			{Name: aws.String("record_id"), Value: aws.String(tagValue(msg.RecordID))},
		},
	}
	if s.configSet != "" {
		input.ConfigurationSetName = aws.String(s.configSet)
	}
	for k, v := range msg.Headers {
		input.Content.Simple.Headers = append(input.Content.Simple.Headers,
			types.MessageHeader{Name: aws.String(k), Value: aws.String(v)})
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("ses send rejected", "record_id", msg.RecordID, "email", msg.To, "error", err)
		return &domain.SendResult{Success: false, Error: err.Error()}, nil
	}

	messageID := aws.ToString(out.MessageId)
	logger.Debug("ses send accepted", "record_id", msg.RecordID, "email", msg.To, "message_id", messageID)
	return &domain.SendResult{Success: true, ProviderID: messageID, SentAt: time.Now().UTC()}, nil
}

func formatAddress(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

// tagValue keeps SES message tags within the allowed character set.
func tagValue(v string) string {
	if v == "" {
		return "none"
	}
	out := make([]rune, 0, len(v))
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
