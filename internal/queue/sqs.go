package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

// SQSAPI is the subset of the SQS client the publisher uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends every topic to one queue and tags messages with the
// topic as a message attribute.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
	log      *zap.Logger
}

// NewSQSPublisher creates an SQS publisher. A non-empty endpoint targets a
// local ElasticMQ with dummy credentials.
func NewSQSPublisher(ctx context.Context, region, queueURL, endpoint string, log *zap.Logger) (*SQSPublisher, error) {
	if queueURL == "" {
		return nil, fmt.Errorf("SQS queue url is required")
	}
	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	var clientOpts []func(*sqs.Options)

	if endpoint != "" {
		log.Info("Configuring SQS for local development", zap.String("endpoint", endpoint))
		configOpts = append(configOpts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
		clientOpts = append(clientOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSQSPublisherWithClient(sqs.NewFromConfig(cfg, clientOpts...), queueURL, log), nil
}

func NewSQSPublisherWithClient(client SQSAPI, queueURL string, log *zap.Logger) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL, log: log}
}

func (p *SQSPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"Topic": {
				DataType:    aws.String("String"),
				StringValue: aws.String(topic),
			},
		},
	}
	if key := KeyFromContext(ctx); len(key) > 0 {
		in.MessageAttributes["Key"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(string(key)),
		}
	}
	if _, err := p.client.SendMessage(ctx, in); err != nil {
		p.log.Error("Failed to send message to SQS", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("failed to send message to SQS: %w", err)
	}
	return nil
}
