package models

import (
	"encoding/json"
	"time"
)

// Audit event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypePaymentAppLaunched = "PAYMENT_APP_LAUNCHED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published when the backend accepts an order
type OrderPlacedEvent struct {
	BaseEvent
	OrderID          string  `json:"order_id"`
	UserID           string  `json:"user_id"`
	PaymentMethod    string  `json:"payment_method"`
	PaymentStatus    string  `json:"payment_status"`
	PaymentReference string  `json:"payment_reference,omitempty"`
	AssertedBy       string  `json:"asserted_by"`
	Total            float64 `json:"total"`
	ItemCount        int     `json:"item_count"`
}

// PaymentAppLaunchedEvent published when the client hands off to a UPI app
type PaymentAppLaunchedEvent struct {
	BaseEvent
	UserID           string  `json:"user_id"`
	App              string  `json:"app"`
	PaymentReference string  `json:"payment_reference"`
	IntentURI        string  `json:"intent_uri"`
	Amount           float64 `json:"amount"`
}

// Realtime channel event names
const (
	RealtimeProductNew         = "product:new"
	RealtimeProductPriceUpdate = "product:price-update"
	RealtimeCartUpdated        = "cart_updated"
	RealtimeConnected          = "connected"
)

// RealtimeMessage is one frame received on the event channel
type RealtimeMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NotificationInput is the payload of product:new and product:price-update
type NotificationInput struct {
	ID                    string   `json:"id"`
	Title                 string   `json:"title"`
	Message               string   `json:"message"`
	Type                  string   `json:"type"`
	ProductID             string   `json:"productId"`
	ImageURL              string   `json:"imageUrl"`
	ActionURL             string   `json:"actionUrl"`
	Timestamp             string   `json:"timestamp"`
	Price                 *float64 `json:"price"`
	DiscountPrice         *float64 `json:"discountPrice"`
	PreviousPrice         *float64 `json:"previousPrice"`
	PreviousDiscountPrice *float64 `json:"previousDiscountPrice"`
}
