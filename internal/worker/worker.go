package worker

import (
	"context"
	"encoding/json"

	"storefront-client/internal/models"
	"storefront-client/internal/realtime"
	"storefront-client/internal/util"

	"go.uber.org/zap"
)

// Channel is where the worker attaches its frame handler.
type Channel interface {
	SetHandler(handler realtime.MessageHandler)
}

// CartRefresher reloads the cart when the server says it changed.
type CartRefresher interface {
	FetchCart(ctx context.Context) error
}

// EventWorker handles frames arriving on the realtime channel
type EventWorker struct {
	channel      Channel
	eventHandler *realtime.EventHandler
	feed         *NotificationFeed
	cart         CartRefresher
	logger       *zap.Logger
}

// NewEventWorker creates a new event worker
func NewEventWorker(channel Channel, feed *NotificationFeed, cart CartRefresher) *EventWorker {
	w := &EventWorker{
		channel:      channel,
		eventHandler: realtime.NewEventHandler(),
		feed:         feed,
		cart:         cart,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnProductNew(w.handleNotification(models.NotificationPromo))
	w.eventHandler.OnPriceUpdate(w.handleNotification(models.NotificationPriceAlert))
	w.eventHandler.OnCartUpdated(w.handleCartUpdated)
	return w
}

// Start loads the persisted feed and attaches to the channel
func (w *EventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting event worker")
	if err := w.feed.Load(ctx); err != nil {
		return err
	}
	w.channel.SetHandler(w.eventHandler.HandleMessage)
	return nil
}

// Stop detaches from the channel
func (w *EventWorker) Stop() {
	w.logger.Info("Stopping event worker")
	w.channel.SetHandler(nil)
}

func (w *EventWorker) handleNotification(defaultType string) func(context.Context, *models.NotificationInput) error {
	return func(ctx context.Context, in *models.NotificationInput) error {
		added, err := w.feed.Add(ctx, in, defaultType)
		if err != nil {
			return err
		}
		if added {
			w.logger.Debug("Notification stored",
				zap.String("id", in.ID),
				zap.String("product_id", in.ProductID))
		}
		return nil
	}
}

func (w *EventWorker) handleCartUpdated(ctx context.Context, _ json.RawMessage) error {
	return w.cart.FetchCart(ctx)
}
