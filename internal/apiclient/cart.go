package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
)

// AddItemRequest is the body of POST /auth/cart/add.
type AddItemRequest struct {
	ProductID     string `json:"productId"`
	Quantity      int    `json:"quantity"`
	SelectedSize  string `json:"selectedSize,omitempty"`
	SelectedColor string `json:"selectedColor,omitempty"`
}

// cartResponse keeps the cart undecoded; the caller sanitizes it.
type cartResponse struct {
	Cart json.RawMessage `json:"cart"`
}

// FetchCart returns the server cart document.
func (c *Client) FetchCart(ctx context.Context, token string) (json.RawMessage, error) {
	return c.cartCall(ctx, http.MethodGet, "/auth/cart", token, nil)
}

// AddToCart adds a product line and returns the new cart document.
func (c *Client) AddToCart(ctx context.Context, token string, item AddItemRequest) (json.RawMessage, error) {
	return c.cartCall(ctx, http.MethodPost, "/auth/cart/add", token, item)
}

// RemoveFromCart removes one line by item id.
func (c *Client) RemoveFromCart(ctx context.Context, token, itemID string) (json.RawMessage, error) {
	return c.cartCall(ctx, http.MethodPost, "/auth/cart/remove", token, map[string]string{"itemId": itemID})
}

// UpdateQuantity sets the quantity of one line.
func (c *Client) UpdateQuantity(ctx context.Context, token, itemID string, quantity int) (json.RawMessage, error) {
	return c.cartCall(ctx, http.MethodPost, "/auth/cart/update-quantity", token, map[string]interface{}{
		"itemId":   itemID,
		"quantity": quantity,
	})
}

// ClearCart empties the server cart.
func (c *Client) ClearCart(ctx context.Context, token string) (json.RawMessage, error) {
	return c.cartCall(ctx, http.MethodPost, "/auth/cart/clear", token, nil)
}

func (c *Client) cartCall(ctx context.Context, method, path, token string, body interface{}) (json.RawMessage, error) {
	var out cartResponse
	if err := c.do(ctx, request{method: method, path: path, token: token, body: body}, &out); err != nil {
		return nil, err
	}
	return out.Cart, nil
}
