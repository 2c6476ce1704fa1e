// Package notify publishes trade events to external channels.
package notify

import (
	"context"

	"github.com/gatti/dex-arbitrage-bot/internal/platform/awsutil"
)

// Publisher delivers an event payload with string attributes. Publishing
// is best-effort from the caller's perspective; trade flow never blocks on
// a failed notification.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any, attributes map[string]string) error
}

// SNSPublisher publishes events to an SNS topic.
type SNSPublisher struct {
	client   *awsutil.SNSClient
	topicARN string
}

// NewSNSPublisher creates an SNS-backed publisher.
func NewSNSPublisher(client *awsutil.SNSClient, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

// Publish sends the payload to the topic, tagging it with the event name.
func (p *SNSPublisher) Publish(ctx context.Context, event string, payload any, attributes map[string]string) error {
	attrs := make(map[string]string, len(attributes)+1)
	for k, v := range attributes {
		attrs[k] = v
	}
	attrs["event"] = event
	return p.client.Publish(ctx, p.topicARN, payload, attrs)
}
