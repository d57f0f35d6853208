// Package pubsub delivers archive notifications to a Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Notifier implements archive.Notifier by publishing one event per
// notification. Downstream consumers (mailers, feeds) own delivery.
type Notifier struct {
	topic *pubsub.Topic
}

// New creates a Notifier for the provided topic.
func New(topic *pubsub.Topic) *Notifier {
	return &Notifier{topic: topic}
}

type event struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Send publishes the notification event and waits for the server ack.
func (n *Notifier) Send(ctx context.Context, to string, subject string, body string) error {
	if n.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(event{Recipient: to, Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	result := n.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
