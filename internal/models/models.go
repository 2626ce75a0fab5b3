package models

import (
	"encoding/json"
	"time"
)

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Session is the single authenticated session of a client instance
type Session struct {
	UserID      string    `json:"userId"`
	Role        string    `json:"role"`
	BearerToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Preferences are the user's shopping preferences
type Preferences struct {
	FavoriteCategories []string `json:"favoriteCategories"`
	Sizes              []string `json:"sizes"`
}

// BudgetPlan is the user's monthly budget split
type BudgetPlan struct {
	TotalBudget float64          `json:"totalBudget"`
	Allocations BudgetAllocation `json:"allocations"`
}

type BudgetAllocation struct {
	Clothing    float64 `json:"clothing"`
	Accessories float64 `json:"accessories"`
	Footwear    float64 `json:"footwear"`
	Other       float64 `json:"other"`
}

// User is the authenticated user snapshot. Cart holds the raw cart seed the
// server returned at login; the cart synchronizer owns the live cart.
type User struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Email               string               `json:"email"`
	Phone               string               `json:"phone,omitempty"`
	Role                string               `json:"role"`
	ProfilePicture      string               `json:"profilePicture,omitempty"`
	RegistrationDate    string               `json:"registrationDate,omitempty"`
	Following           []json.RawMessage    `json:"following"`
	Followers           []json.RawMessage    `json:"followers"`
	Preferences         Preferences          `json:"preferences"`
	BudgetPlan          BudgetPlan           `json:"budgetPlan"`
	Wishlist            []string             `json:"wishlist"`
	Cart                json.RawMessage      `json:"cart,omitempty"`
	SavedAddresses      []SavedAddress       `json:"savedAddresses"`
	SavedPaymentMethods []SavedPaymentMethod `json:"savedPaymentMethods"`
}

// Clone returns a deep enough copy for callers to mutate slices safely
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Following = append([]json.RawMessage(nil), u.Following...)
	c.Followers = append([]json.RawMessage(nil), u.Followers...)
	c.Wishlist = append([]string(nil), u.Wishlist...)
	c.Cart = append(json.RawMessage(nil), u.Cart...)
	c.SavedAddresses = append([]SavedAddress(nil), u.SavedAddresses...)
	c.SavedPaymentMethods = append([]SavedPaymentMethod(nil), u.SavedPaymentMethods...)
	c.Preferences.FavoriteCategories = append([]string(nil), u.Preferences.FavoriteCategories...)
	c.Preferences.Sizes = append([]string(nil), u.Preferences.Sizes...)
	return &c
}

// Product is the denormalized product snapshot carried by a cart item
type Product struct {
	ID            string   `json:"_id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Price         float64  `json:"price"`
	DiscountPrice *float64 `json:"discountPrice,omitempty"`
	Images        []string `json:"images"`
	Category      string   `json:"category"`
	Brand         string   `json:"brand"`
	Rating        float64  `json:"rating"`
	ReviewCount   int      `json:"reviewCount"`
	Stock         int      `json:"stock"`
	CreatedAt     string   `json:"createdAt"`
}

// UnitPrice is the discount price when one is set, the list price otherwise
func (p Product) UnitPrice() float64 {
	if p.DiscountPrice != nil && *p.DiscountPrice > 0 {
		return *p.DiscountPrice
	}
	return p.Price
}

// CartItem is one line of the cart
type CartItem struct {
	ID            string  `json:"_id"`
	Product       Product `json:"product"`
	Quantity      int     `json:"quantity"`
	SelectedColor string  `json:"selectedColor,omitempty"`
	SelectedSize  string  `json:"selectedSize,omitempty"`
}

// Cart is the client's single cart
type Cart struct {
	Items []CartItem `json:"items"`
	Total float64    `json:"total"`
}

// ItemCount sums quantities across lines
func (c Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// Clone copies the item slice
func (c Cart) Clone() Cart {
	return Cart{Items: append([]CartItem(nil), c.Items...), Total: c.Total}
}

// SavedAddress is a server-owned shipping address
type SavedAddress struct {
	ID        string `json:"_id"`
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

// SavedPaymentMethod is a server-owned card reference
type SavedPaymentMethod struct {
	ID             string `json:"id"`
	CardholderName string `json:"cardholderName"`
	Brand          string `json:"brand"`
	Last4          string `json:"last4"`
	ExpiryMonth    int    `json:"expiryMonth"`
	ExpiryYear     int    `json:"expiryYear"`
	IsDefault      bool   `json:"isDefault,omitempty"`
}

// Notification types
const (
	NotificationPriceAlert = "priceAlert"
	NotificationStockAlert = "stockAlert"
	NotificationPromo      = "promo"
	NotificationSystem     = "system"
)

// Notification is one entry of the persisted notification feed
type Notification struct {
	ID                    string    `json:"id"`
	Title                 string    `json:"title"`
	Message               string    `json:"message"`
	Type                  string    `json:"type"`
	Read                  bool      `json:"read"`
	Timestamp             time.Time `json:"timestamp"`
	ProductID             string    `json:"productId,omitempty"`
	ImageURL              string    `json:"imageUrl,omitempty"`
	ActionURL             string    `json:"actionUrl,omitempty"`
	Price                 *float64  `json:"price"`
	DiscountPrice         *float64  `json:"discountPrice"`
	PreviousPrice         *float64  `json:"previousPrice"`
	PreviousDiscountPrice *float64  `json:"previousDiscountPrice"`
}
