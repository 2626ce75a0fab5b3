package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"storefront-client/internal/apiclient"
	"storefront-client/internal/models"
	"storefront-client/internal/util"

	"go.uber.org/zap"
)

// Cart modes
const (
	cartModeAuth  = "auth"
	cartModeGuest = "guest"
)

// CartAPI is the subset of the backend used for cart round trips. Every call
// returns the full cart document.
type CartAPI interface {
	FetchCart(ctx context.Context, token string) (json.RawMessage, error)
	AddToCart(ctx context.Context, token string, item apiclient.AddItemRequest) (json.RawMessage, error)
	RemoveFromCart(ctx context.Context, token, itemID string) (json.RawMessage, error)
	UpdateQuantity(ctx context.Context, token, itemID string, quantity int) (json.RawMessage, error)
	ClearCart(ctx context.Context, token string) (json.RawMessage, error)
}

// SessionReader exposes the session state other components depend on.
type SessionReader interface {
	IsAuthenticated() bool
	Token() (string, bool)
	User() *models.User
	UserID() string
}

// CartSynchronizer is the only writer of cart state. Authenticated carts are
// replaced wholesale by each server response; guest carts live in memory.
// Mutations run one at a time.
type CartSynchronizer struct {
	api     CartAPI
	session SessionReader
	logger  *zap.Logger

	// held for the whole round trip so that mutations are applied in order
	inflight sync.Mutex

	mu    sync.RWMutex
	cart  models.Cart
	epoch uint64
}

// NewCartSynchronizer creates a synchronizer with an empty cart
func NewCartSynchronizer(api CartAPI, session SessionReader) *CartSynchronizer {
	return &CartSynchronizer{
		api:     api,
		session: session,
		logger:  util.GetLogger(),
		cart:    models.Cart{Items: []models.CartItem{}},
	}
}

// HandleTransition reacts to session changes: a new session seeds the cart
// from the user's cart document, a logout resets it. Responses to requests
// issued before the change are discarded.
func (cs *CartSynchronizer) HandleTransition(t Transition) {
	next := models.Cart{Items: []models.CartItem{}}
	if t.To == StateAuthenticated && t.User != nil && len(t.User.Cart) > 0 {
		next, _ = SanitizeCart(t.User.Cart)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if t.To == StateAuthenticating {
		return
	}
	cs.epoch++
	cs.cart = next
}

// Cart returns a copy of the current cart.
func (cs *CartSynchronizer) Cart() models.Cart {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.cart.Clone()
}

// FetchCart reloads the cart from the server. It does nothing for guests.
func (cs *CartSynchronizer) FetchCart(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "CartSynchronizer.FetchCart")
	defer span.End()

	if !cs.session.IsAuthenticated() {
		return nil
	}
	return cs.roundTrip(ctx, "fetch", "Failed to load cart", func(token string) (json.RawMessage, error) {
		return cs.api.FetchCart(ctx, token)
	})
}

// AddToCart adds quantity units of product. Guests cannot add items; the
// call is a no-op for them.
func (cs *CartSynchronizer) AddToCart(ctx context.Context, product models.Product, quantity int, size, color string) error {
	ctx, span := util.StartSpan(ctx, "CartSynchronizer.AddToCart")
	defer span.End()

	if !cs.session.IsAuthenticated() {
		util.CartMutationsTotal.WithLabelValues("add", cartModeGuest, "noop").Inc()
		return nil
	}
	if product.ID == "" {
		return newOpError(ErrValidation, "Product identifier is missing", nil)
	}
	if quantity < 1 {
		quantity = 1
	}

	req := apiclient.AddItemRequest{
		ProductID:     product.ID,
		Quantity:      quantity,
		SelectedSize:  size,
		SelectedColor: color,
	}
	return cs.roundTrip(ctx, "add", "Failed to add to cart", func(token string) (json.RawMessage, error) {
		return cs.api.AddToCart(ctx, token, req)
	})
}

// RemoveFromCart removes the line with itemID.
func (cs *CartSynchronizer) RemoveFromCart(ctx context.Context, itemID string) error {
	ctx, span := util.StartSpan(ctx, "CartSynchronizer.RemoveFromCart")
	defer span.End()

	if !cs.session.IsAuthenticated() {
		cs.mutateGuest("remove", func(items []models.CartItem) []models.CartItem {
			kept := make([]models.CartItem, 0, len(items))
			for _, item := range items {
				if item.ID != itemID {
					kept = append(kept, item)
				}
			}
			return kept
		})
		return nil
	}

	return cs.roundTrip(ctx, "remove", "Failed to remove from cart", func(token string) (json.RawMessage, error) {
		return cs.api.RemoveFromCart(ctx, token, itemID)
	})
}

// UpdateQuantity sets the quantity of itemID, clamped to at least 1. A
// request that would not change the stored quantity is skipped.
func (cs *CartSynchronizer) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	ctx, span := util.StartSpan(ctx, "CartSynchronizer.UpdateQuantity")
	defer span.End()

	if quantity < 1 {
		quantity = 1
	}

	if current, ok := cs.quantityOf(itemID); ok && current == quantity {
		util.CartMutationsTotal.WithLabelValues("update_quantity", cs.mode(), "noop").Inc()
		return nil
	}

	if !cs.session.IsAuthenticated() {
		cs.mutateGuest("update_quantity", func(items []models.CartItem) []models.CartItem {
			for i := range items {
				if items[i].ID == itemID {
					items[i].Quantity = quantity
				}
			}
			return items
		})
		return nil
	}

	return cs.roundTrip(ctx, "update_quantity", "Failed to update quantity", func(token string) (json.RawMessage, error) {
		return cs.api.UpdateQuantity(ctx, token, itemID, quantity)
	})
}

// ClearCart empties the cart.
func (cs *CartSynchronizer) ClearCart(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "CartSynchronizer.ClearCart")
	defer span.End()

	if !cs.session.IsAuthenticated() {
		cs.mutateGuest("clear", func([]models.CartItem) []models.CartItem {
			return []models.CartItem{}
		})
		return nil
	}

	return cs.roundTrip(ctx, "clear", "Failed to clear cart", func(token string) (json.RawMessage, error) {
		if _, err := cs.api.ClearCart(ctx, token); err != nil {
			return nil, err
		}
		return json.RawMessage(`{"items":[],"total":0}`), nil
	})
}

// roundTrip runs one authenticated mutation and replaces the cart with the
// sanitized response.
func (cs *CartSynchronizer) roundTrip(ctx context.Context, op, failure string, call func(token string) (json.RawMessage, error)) error {
	start := time.Now()
	cs.inflight.Lock()
	defer cs.inflight.Unlock()
	defer func() {
		util.CartSyncLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	token, ok := cs.session.Token()
	if !ok {
		util.CartMutationsTotal.WithLabelValues(op, cartModeAuth, "error").Inc()
		return newOpError(ErrCartSync, "No authentication token found", nil)
	}

	cs.mu.RLock()
	epoch := cs.epoch
	cs.mu.RUnlock()

	raw, err := call(token)
	if err != nil {
		util.CartMutationsTotal.WithLabelValues(op, cartModeAuth, "error").Inc()
		cs.logger.Warn("Cart round trip failed", zap.String("op", op), zap.Error(err))
		return newOpError(ErrCartSync, messageOr(err, failure), err)
	}

	cart, repaired := SanitizeCart(raw)
	if repaired > 0 {
		util.CartItemsSanitizedTotal.Add(float64(repaired))
		cs.logger.Warn("Cart contained unavailable products",
			zap.String("op", op),
			zap.Int("items", repaired))
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.epoch != epoch {
		util.CartMutationsTotal.WithLabelValues(op, cartModeAuth, "stale").Inc()
		cs.logger.Info("Discarding cart response from a previous session", zap.String("op", op))
		return nil
	}
	cs.cart = cart
	util.CartMutationsTotal.WithLabelValues(op, cartModeAuth, "success").Inc()
	return nil
}

func (cs *CartSynchronizer) mutateGuest(op string, fn func([]models.CartItem) []models.CartItem) {
	cs.inflight.Lock()
	defer cs.inflight.Unlock()

	cs.mu.Lock()
	defer cs.mu.Unlock()
	items := fn(append([]models.CartItem(nil), cs.cart.Items...))
	cs.cart = models.Cart{Items: items, Total: localCartTotal(items)}
	util.CartMutationsTotal.WithLabelValues(op, cartModeGuest, "success").Inc()
}

func (cs *CartSynchronizer) quantityOf(itemID string) (int, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	for _, item := range cs.cart.Items {
		if item.ID == itemID {
			return item.Quantity, true
		}
	}
	return 0, false
}

func (cs *CartSynchronizer) mode() string {
	if cs.session.IsAuthenticated() {
		return cartModeAuth
	}
	return cartModeGuest
}
