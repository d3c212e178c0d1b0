package sending

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/ignite/studio-automation/internal/config"
)

// NewEmailSender builds the email transport named by cfg.Provider.
func NewEmailSender(cfg config.EmailConfig, awsCfg aws.Config) (EmailSender, error) {
	switch cfg.Provider {
	case config.EmailProviderSES:
		return NewSESSender(sesv2.NewFromConfig(awsCfg), cfg.ConfigSet), nil
	case config.EmailProviderSMTP:
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("smtp provider requires smtp_host")
		}
		return NewSMTPSender(NewSMTPDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword), domainOf(cfg.FromEmail)), nil
	case config.EmailProviderSendGrid:
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("sendgrid provider requires an api key")
		}
		return NewSendGridSender(NewSendGridClient(cfg.SendGridAPIKey)), nil
	case config.EmailProviderLog, "":
		return LogSender{}, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

// NewSMSSender builds the SMS transport named by cfg.Provider. An empty
// provider returns nil: SMS steps are then skipped.
func NewSMSSender(cfg config.SMSConfig, awsCfg aws.Config) (SMSSender, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case config.SMSProviderTwilio:
		s, err := NewTwilioSender(TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioFromNumber,
			BaseURL:    cfg.TwilioBaseURL,
		}, nil)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SMSProviderSNS:
		return NewSNSSender(sns.NewFromConfig(awsCfg), cfg.SNSSenderID), nil
	case config.SMSProviderLog:
		return LogSender{}, nil
	default:
		return nil, fmt.Errorf("unknown sms provider %q", cfg.Provider)
	}
}

func domainOf(email string) string {
	for i := len(email) - 1; i >= 0; i-- {
		if email[i] == '@' {
			return email[i+1:]
		}
	}
	return ""
}
