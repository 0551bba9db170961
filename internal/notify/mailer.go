package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/ignite/giftdrive/internal/pkg/logger"
)

// Message is a rendered plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
	// Tags are attached to the send for delivery analytics.
	Tags map[string]string
}

// Mailer sends one email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SESConfig configures the SES mailer. Empty keys fall back to the default
// AWS credential chain.
type SESConfig struct {
	Region    string
	AccessKey string
	SecretKey string
	From      string
}

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer sends mail through Amazon SES v2.
type SESMailer struct {
	client sesAPI
	from   string
}

// NewSESMailer loads AWS configuration and returns a mailer.
func NewSESMailer(ctx context.Context, cfg SESConfig) (*SESMailer, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("ses: from address required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SESMailer{client: sesv2.NewFromConfig(awsCfg), from: cfg.From}, nil
}

func (m *SESMailer) Send(ctx context.Context, msg Message) error {
	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	for k, v := range msg.Tags {
		if v == "" {
			continue
		}
		in.EmailTags = append(in.EmailTags, types.MessageTag{Name: aws.String(k), Value: aws.String(v)})
	}

	out, err := m.client.SendEmail(ctx, in)
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	logger.Info("email sent", "to_email", msg.To, "message_id", aws.ToString(out.MessageId))
	return nil
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	logger.Info("email (not sent)", "to_email", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}
