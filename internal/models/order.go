package models

import (
	"encoding/json"
	"time"
)

// Payment method codes understood by the order endpoint
const (
	PaymentMethodCard   = "credit-card"
	PaymentMethodPayPal = "paypal"
	PaymentMethodUPIApp = "upi-app"
)

// UPI payment statuses
const (
	UPIStatusInitiated = "initiated"
	UPIStatusPaid      = "paid"
)

// Payment asserters recorded on receipts
const (
	AssertedByUser    = "user"
	AssertedByGateway = "gateway"
)

// OrderProductRef references a product by id in an order payload
type OrderProductRef struct {
	ID string `json:"_id"`
}

// OrderItemPayload is one order line
type OrderItemPayload struct {
	Product  OrderProductRef `json:"product"`
	Quantity int             `json:"quantity"`
}

// OrderPayload is the immutable order submission body. Card fields and UPI
// fields are mutually exclusive and omitted when not relevant.
type OrderPayload struct {
	User      string `json:"user"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`

	PaymentMethod        string `json:"paymentMethod"`
	SavedPaymentMethodID string `json:"savedPaymentMethodId,omitempty"`
	CardNumber           string `json:"cardNumber,omitempty"`
	CardName             string `json:"cardName,omitempty"`
	ExpiryDate           string `json:"expiryDate,omitempty"`

	UPIApp           string `json:"upiApp,omitempty"`
	UPITransactionID string `json:"upiTransactionId,omitempty"`
	UPIVPA           string `json:"upiVpa,omitempty"`
	UPIStatus        string `json:"upiStatus,omitempty"`
	UPIIntentURL     string `json:"upiIntentUrl,omitempty"`

	Items    []OrderItemPayload `json:"items"`
	Subtotal float64            `json:"subtotal"`
	Tax      float64            `json:"tax"`
	Total    float64            `json:"total"`
}

// OrderResult is what the confirmation view receives after a successful submit
type OrderResult struct {
	OrderID       string          `json:"orderId"`
	Order         json.RawMessage `json:"order,omitempty"`
	PaymentMethod string          `json:"paymentMethod"`
	PaymentStatus string          `json:"paymentStatus"`
	Total         float64         `json:"total"`
}

// OrderReceipt is the local ledger entry written after an order is accepted
type OrderReceipt struct {
	OrderID          string    `db:"order_id" json:"order_id"`
	UserID           string    `db:"user_id" json:"user_id"`
	PaymentMethod    string    `db:"payment_method" json:"payment_method"`
	PaymentStatus    string    `db:"payment_status" json:"payment_status"`
	PaymentReference string    `db:"payment_reference" json:"payment_reference,omitempty"`
	IntentURI        string    `db:"intent_uri" json:"intent_uri,omitempty"`
	AssertedBy       string    `db:"asserted_by" json:"asserted_by"`
	Total            float64   `db:"total" json:"total"`
	Payload          []byte    `db:"payload" json:"-"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
