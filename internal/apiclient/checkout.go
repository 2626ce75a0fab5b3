package apiclient

import (
	"context"
	"net/http"

	"storefront-client/internal/models"
)

// SaveAddressRequest is the body of POST /auth/addresses.
type SaveAddressRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
	IsDefault bool   `json:"isDefault,omitempty"`
}

// SaveAddressResponse carries the created address and the full list.
type SaveAddressResponse struct {
	Address   models.SavedAddress   `json:"address"`
	Addresses []models.SavedAddress `json:"addresses"`
}

// SavePaymentMethodRequest is the body of POST /auth/payment-methods.
type SavePaymentMethodRequest struct {
	CardholderName string `json:"cardholderName"`
	CardNumber     string `json:"cardNumber"`
	ExpiryMonth    int    `json:"expiryMonth"`
	ExpiryYear     int    `json:"expiryYear"`
	IsDefault      bool   `json:"isDefault,omitempty"`
}

// SavePaymentMethodResponse carries the created method and the full list.
type SavePaymentMethodResponse struct {
	PaymentMethod  models.SavedPaymentMethod   `json:"paymentMethod"`
	PaymentMethods []models.SavedPaymentMethod `json:"paymentMethods"`
}

// ListAddresses returns the user's saved addresses.
func (c *Client) ListAddresses(ctx context.Context, token string) ([]models.SavedAddress, error) {
	var out struct {
		Addresses []models.SavedAddress `json:"addresses"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/addresses", token: token}, &out); err != nil {
		return nil, err
	}
	if out.Addresses == nil {
		return []models.SavedAddress{}, nil
	}
	return out.Addresses, nil
}

// SaveAddress stores a new address.
func (c *Client) SaveAddress(ctx context.Context, token string, req SaveAddressRequest) (*SaveAddressResponse, error) {
	var out SaveAddressResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/addresses", token: token, body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPaymentMethods returns the user's saved cards.
func (c *Client) ListPaymentMethods(ctx context.Context, token string) ([]models.SavedPaymentMethod, error) {
	var out struct {
		PaymentMethods []models.SavedPaymentMethod `json:"paymentMethods"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/payment-methods", token: token}, &out); err != nil {
		return nil, err
	}
	if out.PaymentMethods == nil {
		return []models.SavedPaymentMethod{}, nil
	}
	return out.PaymentMethods, nil
}

// SavePaymentMethod stores a new card.
func (c *Client) SavePaymentMethod(ctx context.Context, token string, req SavePaymentMethodRequest) (*SavePaymentMethodResponse, error) {
	var out SavePaymentMethodResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/payment-methods", token: token, body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrder submits an order payload.
func (c *Client) CreateOrder(ctx context.Context, token string, payload *models.OrderPayload) (*models.OrderResult, error) {
	var out models.OrderResult
	if err := c.do(ctx, request{method: http.MethodPost, path: "/orders", token: token, body: payload}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
