package awsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/gatti/dex-arbitrage-bot/internal/platform/observability"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/resilience"
)

// snsAPI is the subset of the SNS client the wrapper uses.
type snsAPI interface {
	Publish(ctx context.Context, input *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSClient publishes JSON messages to an SNS topic, retrying transient
// failures behind a circuit breaker.
type SNSClient struct {
	api     snsAPI
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	logger  *observability.Logger
	metrics *observability.Metrics
}

// SNSClientConfig holds SNS client dependencies.
type SNSClientConfig struct {
	AWSConfig aws.Config
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Retry     *resilience.RetryConfig
}

// NewSNSClient creates an SNS client wrapper.
func NewSNSClient(cfg SNSClientConfig) *SNSClient {
	retry := resilience.DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "sns",
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		OnStateChange: func(from, to resilience.State) {
			if cfg.Logger != nil {
				cfg.Logger.LogInfo(context.Background(), "sns circuit breaker state changed",
					"from", from.String(),
					"to", to.String(),
				)
			}
			if cfg.Metrics != nil {
				cfg.Metrics.SetCircuitBreakerState(context.Background(), "sns", int64(to))
			}
		},
	})

	return &SNSClient{
		api:     sns.NewFromConfig(cfg.AWSConfig),
		breaker: breaker,
		retry:   retry,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Publish marshals message to JSON and publishes it to the topic.
func (s *SNSClient) Publish(ctx context.Context, topicARN string, message any, attributes map[string]string) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshalling sns message: %w", err)
	}

	err = s.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, s.retry, func(ctx context.Context) error {
			return s.publishOnce(ctx, topicARN, string(payload), attributes)
		})
	})
	if err != nil {
		if s.logger != nil {
			s.logger.LogError(ctx, "sns publish failed", err, "topic_arn", topicARN)
		}
		return err
	}
	return nil
}

func (s *SNSClient) publishOnce(ctx context.Context, topicARN, message string, attributes map[string]string) error {
	attrs := make(map[string]types.MessageAttributeValue, len(attributes))
	for k, v := range attributes {
		attrs[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	_, err := s.api.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(topicARN),
		Message:           aws.String(message),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
