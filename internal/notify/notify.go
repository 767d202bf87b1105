// Copyright 2025 James Ross
package notify

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/dclexplorer/consumer-processor/internal/config"
	"go.uber.org/zap"
)

// Publisher publishes a single completion message to an external topic
// (spec.md component C3). It is optional: a MockPublisher is used when
// SNS_ARN is unset.
type Publisher interface {
	Publish(ctx context.Context, payload interface{}) error
}

// SNSPublisher publishes to AWS SNS, sharing the same session shape as the
// S3 storage backend.
type SNSPublisher struct {
	client *sns.SNS
	arn    string
}

func NewSNSPublisher(cfg config.Notification, awsCfg config.AWS) (*SNSPublisher, error) {
	sessCfg := &aws.Config{Region: aws.String(awsCfg.Region)}
	endpoint := cfg.SNSEndpoint
	if endpoint == "" {
		endpoint = awsCfg.Endpoint
	}
	if endpoint != "" {
		sessCfg.Endpoint = aws.String(endpoint)
	}
	sess, err := session.NewSession(sessCfg)
	if err != nil {
		return nil, err
	}
	return &SNSPublisher{client: sns.New(sess), arn: cfg.SNSArn}, nil
}

func (p *SNSPublisher) Publish(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = p.client.PublishWithContext(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.arn),
		Message:  aws.String(string(body)),
	})
	return err
}

// MockPublisher logs instead of publishing, used when no topic is configured.
type MockPublisher struct {
	log *zap.Logger
}

func NewMockPublisher(log *zap.Logger) *MockPublisher { return &MockPublisher{log: log} }

func (p *MockPublisher) Publish(ctx context.Context, payload interface{}) error {
	body, _ := json.Marshal(payload)
	p.log.Debug("mock notification publish", zap.ByteString("payload", body))
	return nil
}

var (
	_ Publisher = (*SNSPublisher)(nil)
	_ Publisher = (*MockPublisher)(nil)
)
