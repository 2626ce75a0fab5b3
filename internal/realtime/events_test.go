package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"storefront-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessageRoutesByType(t *testing.T) {
	var promos, alerts []string
	var cart json.RawMessage

	eh := NewEventHandler()
	eh.OnProductNew(func(ctx context.Context, in *models.NotificationInput) error {
		promos = append(promos, in.ID)
		return nil
	})
	eh.OnPriceUpdate(func(ctx context.Context, in *models.NotificationInput) error {
		alerts = append(alerts, in.ID)
		return nil
	})
	eh.OnCartUpdated(func(ctx context.Context, payload json.RawMessage) error {
		cart = payload
		return nil
	})

	ctx := context.Background()
	require.NoError(t, eh.HandleMessage(ctx, models.RealtimeMessage{Type: models.RealtimeProductNew, Payload: json.RawMessage(`{"id":"a"}`)}))
	require.NoError(t, eh.HandleMessage(ctx, models.RealtimeMessage{Type: models.RealtimeProductPriceUpdate, Payload: json.RawMessage(`{"id":"b"}`)}))
	require.NoError(t, eh.HandleMessage(ctx, models.RealtimeMessage{Type: models.RealtimeCartUpdated, Payload: json.RawMessage(`{"total":3}`)}))
	require.NoError(t, eh.HandleMessage(ctx, models.RealtimeMessage{Type: "postLiked"}))

	assert.Equal(t, []string{"a"}, promos)
	assert.Equal(t, []string{"b"}, alerts)
	assert.JSONEq(t, `{"total":3}`, string(cart))
}

func TestHandleMessageBadPayload(t *testing.T) {
	eh := NewEventHandler()
	eh.OnProductNew(func(ctx context.Context, in *models.NotificationInput) error { return nil })

	err := eh.HandleMessage(context.Background(), models.RealtimeMessage{
		Type:    models.RealtimeProductNew,
		Payload: json.RawMessage(`[1,2]`),
	})
	assert.Error(t, err)
}
