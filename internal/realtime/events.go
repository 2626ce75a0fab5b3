package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront-client/internal/models"
	"storefront-client/internal/util"

	"go.uber.org/zap"
)

// EventHandler routes channel frames to typed callbacks
type EventHandler struct {
	onProductNew  func(context.Context, *models.NotificationInput) error
	onPriceUpdate func(context.Context, *models.NotificationInput) error
	onCartUpdated func(context.Context, json.RawMessage) error
	logger        *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnProductNew registers a handler for product:new events
func (eh *EventHandler) OnProductNew(handler func(context.Context, *models.NotificationInput) error) {
	eh.onProductNew = handler
}

// OnPriceUpdate registers a handler for product:price-update events
func (eh *EventHandler) OnPriceUpdate(handler func(context.Context, *models.NotificationInput) error) {
	eh.onPriceUpdate = handler
}

// OnCartUpdated registers a handler for cart_updated events
func (eh *EventHandler) OnCartUpdated(handler func(context.Context, json.RawMessage) error) {
	eh.onCartUpdated = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg models.RealtimeMessage) error {
	switch msg.Type {
	case models.RealtimeProductNew:
		if eh.onProductNew != nil {
			var input models.NotificationInput
			if err := json.Unmarshal(msg.Payload, &input); err != nil {
				return fmt.Errorf("failed to unmarshal product:new payload: %w", err)
			}
			return eh.onProductNew(ctx, &input)
		}

	case models.RealtimeProductPriceUpdate:
		if eh.onPriceUpdate != nil {
			var input models.NotificationInput
			if err := json.Unmarshal(msg.Payload, &input); err != nil {
				return fmt.Errorf("failed to unmarshal product:price-update payload: %w", err)
			}
			return eh.onPriceUpdate(ctx, &input)
		}

	case models.RealtimeCartUpdated:
		if eh.onCartUpdated != nil {
			return eh.onCartUpdated(ctx, msg.Payload)
		}

	case models.RealtimeConnected:
		eh.logger.Debug("Event channel acknowledged connection")

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", msg.Type))
	}

	return nil
}
