package service

import (
	"context"
	"encoding/json"
	"fmt"

	"app/internal/pubsub"
)

// PubSubBillingPublisher emits billing events as JSON onto a Pub/Sub topic.
type PubSubBillingPublisher struct {
	publisher pubsub.Publisher
	topic     string
}

// NewPubSubBillingPublisher creates a new PubSubBillingPublisher.
func NewPubSubBillingPublisher(publisher pubsub.Publisher, topic string) *PubSubBillingPublisher {
	return &PubSubBillingPublisher{publisher: publisher, topic: topic}
}

func (p *PubSubBillingPublisher) Publish(ctx context.Context, event BillingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal billing event: %w", err)
	}
	if _, err := p.publisher.Publish(ctx, p.topic, payload); err != nil {
		return err
	}
	return nil
}
