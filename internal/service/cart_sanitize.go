package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"storefront-client/internal/models"
)

// Placeholders for cart items whose product is gone or malformed.
const (
	PlaceholderProductID   = "deleted-product"
	PlaceholderProductName = "[Product Not Available]"
)

// SanitizeCart decodes a server cart document leniently. It never fails:
// malformed items get placeholder products, missing ids are synthesized,
// lines repeating a server id are dropped and quantities are clamped to at
// least 1. The server total is kept when it is a
// number; otherwise the total is recomputed. The second result counts items
// that needed placeholder values.
func SanitizeCart(raw json.RawMessage) (models.Cart, int) {
	empty := models.Cart{Items: []models.CartItem{}}

	var doc map[string]interface{}
	if len(raw) == 0 || json.Unmarshal(raw, &doc) != nil || doc == nil {
		return empty, 0
	}

	rawItems, _ := doc["items"].([]interface{})
	items := make([]models.CartItem, 0, len(rawItems))
	seen := make(map[string]int, len(rawItems))
	repaired := 0

	for _, ri := range rawItems {
		obj, ok := ri.(map[string]interface{})
		if !ok {
			continue
		}

		id, _ := obj["_id"].(string)
		if id != "" && seen[id] > 0 {
			// the server can only address the first line with this id
			continue
		}

		product, fixed := sanitizeProduct(obj["product"])
		if fixed {
			repaired++
		}

		if id == "" {
			id = product.ID + "-cart-item"
		}
		if n := seen[id]; n > 0 {
			seen[id] = n + 1
			id = fmt.Sprintf("%s-%d", id, n+1)
		} else {
			seen[id] = 1
		}

		items = append(items, models.CartItem{
			ID:            id,
			Product:       product,
			Quantity:      sanitizeQuantity(obj["quantity"]),
			SelectedColor: stringField(obj, "selectedColor"),
			SelectedSize:  stringField(obj, "selectedSize"),
		})
	}

	cart := models.Cart{Items: items}
	if total, ok := doc["total"].(float64); ok && !math.IsNaN(total) {
		cart.Total = total
	} else {
		cart.Total = localCartTotal(items)
	}
	return cart, repaired
}

func sanitizeProduct(v interface{}) (models.Product, bool) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return models.Product{
			ID:     PlaceholderProductID,
			Name:   PlaceholderProductName,
			Images: []string{},
		}, true
	}

	fixed := false
	p := models.Product{
		Description: stringField(obj, "description"),
		Category:    stringField(obj, "category"),
		Brand:       stringField(obj, "brand"),
		CreatedAt:   stringField(obj, "createdAt"),
		Images:      []string{},
	}

	p.ID = stringField(obj, "_id")
	if p.ID == "" {
		p.ID = stringField(obj, "id")
	}
	if p.ID == "" {
		p.ID = PlaceholderProductID
		fixed = true
	}

	p.Name = stringField(obj, "name")
	if strings.TrimSpace(p.Name) == "" {
		p.Name = PlaceholderProductName
		fixed = true
	}

	price, ok := numberField(obj, "price")
	if !ok {
		fixed = true
	}
	p.Price = price

	if d, ok := obj["discountPrice"].(float64); ok {
		p.DiscountPrice = &d
	}
	if imgs, ok := obj["images"].([]interface{}); ok {
		for _, img := range imgs {
			if s, ok := img.(string); ok {
				p.Images = append(p.Images, s)
			}
		}
	}
	if r, ok := obj["rating"].(float64); ok {
		p.Rating = r
	}
	if n, ok := obj["reviewCount"].(float64); ok {
		p.ReviewCount = int(n)
	}
	if n, ok := obj["stock"].(float64); ok {
		p.Stock = int(n)
	}
	return p, fixed
}

func sanitizeQuantity(v interface{}) int {
	q, ok := toNumber(v)
	if !ok || q < 1 {
		return 1
	}
	return int(q)
}

func stringField(obj map[string]interface{}, key string) string {
	s, _ := obj[key].(string)
	return s
}

// numberField accepts JSON numbers and numeric strings.
func numberField(obj map[string]interface{}, key string) (float64, bool) {
	return toNumber(obj[key])
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
