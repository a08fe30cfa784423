package email

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/penletter/penletter/internal/model"
	"github.com/penletter/penletter/internal/secret"
)

// sesAPI is the subset of the SES v2 client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESClient sends mail through AWS SES v2.
type SESClient struct {
	api    sesAPI
	sender model.SubscriberEmail
}

// SESConfig holds the settings for NewSESClient.
type SESConfig struct {
	Region    string
	AccessKey string
	SecretKey secret.String
	Sender    model.SubscriberEmail
}

// NewSESClient loads the AWS configuration and creates an SES client.
// Static credentials are used when both keys are set; otherwise the default
// AWS credential chain applies.
func NewSESClient(ctx context.Context, cfg SESConfig) (*SESClient, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && !cfg.SecretKey.IsEmpty() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey.Expose(), ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SESClient{api: sesv2.NewFromConfig(awsCfg), sender: cfg.Sender}, nil
}

// Send delivers one message with an HTML and a text part.
func (c *SESClient) Send(ctx context.Context, to model.SubscriberEmail, subject, htmlBody, textBody string) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.sender.String()),
		Destination:      &types.Destination{ToAddresses: []string{to.String()}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(textBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	if _, err := c.api.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("%w: ses: %w", ErrSendFailed, err)
	}

	return nil
}
