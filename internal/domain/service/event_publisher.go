package service

import (
	"context"
	"time"
)

// DomainEvent is a fact about a job or proposal published to other services.
// Name follows "<aggregate>.<fact>", e.g. "job.payment_secured".
type DomainEvent struct {
	Name        string
	AggregateID string
	OccurredAt  time.Time
	Data        interface{}
}

type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
}

// NopPublisher drops events. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, DomainEvent) error { return nil }
