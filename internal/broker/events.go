package broker

import (
	"context"
	"fmt"

	"storefront-client/internal/models"
)

// EventPublisher publishes checkout audit events. Events are keyed by user so
// that one shopper's launches and orders stay in order.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderPlaced publishes OrderPlaced event
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return ep.producer.PublishEvent(ctx, userKey(event.UserID), event)
}

// PublishPaymentAppLaunched publishes PaymentAppLaunched event
func (ep *EventPublisher) PublishPaymentAppLaunched(ctx context.Context, event *models.PaymentAppLaunchedEvent) error {
	return ep.producer.PublishEvent(ctx, userKey(event.UserID), event)
}

func userKey(userID string) string {
	if userID == "" {
		return "user-anonymous"
	}
	return fmt.Sprintf("user-%s", userID)
}
