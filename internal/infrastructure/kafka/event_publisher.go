package kafka

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"workbee/internal/domain/service"
	"workbee/pkg/errors"
)

const defaultSource = "app://workbee"

// EventPublisher encodes domain events as CloudEvents JSON and writes them to
// one topic, keyed by aggregate id so a job's events stay ordered.
type EventPublisher struct {
	producer *Producer
	topic    string
	source   string
}

func NewEventPublisher(producer *Producer, topic string) *EventPublisher {
	return &EventPublisher{
		producer: producer,
		topic:    topic,
		source:   defaultSource,
	}
}

func (p *EventPublisher) Publish(ctx context.Context, event service.DomainEvent) error {
	payload, err := json.Marshal(map[string]interface{}{
		"specversion":     "1.0",
		"id":              uuid.NewString(),
		"type":            event.Name + ".v1",
		"source":          p.source,
		"subject":         event.AggregateID,
		"time":            event.OccurredAt,
		"datacontenttype": "application/json",
		"data":            event.Data,
	})
	if err != nil {
		return errors.Internal("Failed to encode event", err)
	}

	headers := map[string]string{
		"content-type": "application/cloudevents+json",
		"ce-type":      event.Name + ".v1",
	}
	if err := p.producer.Publish(ctx, p.topic, event.AggregateID, payload, headers); err != nil {
		return errors.ExternalService("Failed to publish event", err)
	}
	return nil
}
