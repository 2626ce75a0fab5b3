package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-client/internal/models"
)

var ErrReceiptNotFound = errors.New("receipt not found")

const receiptColumns = `order_id, user_id, payment_method, payment_status, payment_reference,
	intent_uri, asserted_by, total, payload, created_at`

// RecordReceipt writes a receipt. Recording the same order twice keeps the
// first one.
func (s *Store) RecordReceipt(ctx context.Context, r *models.OrderReceipt) error {
	query := `
		INSERT INTO order_receipts (` + receiptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (order_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		r.OrderID, r.UserID, r.PaymentMethod, r.PaymentStatus, r.PaymentReference,
		r.IntentURI, r.AssertedBy, r.Total, r.Payload, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record receipt %s: %w", r.OrderID, err)
	}
	return nil
}

// GetReceipt retrieves a receipt by order ID
func (s *Store) GetReceipt(ctx context.Context, orderID string) (*models.OrderReceipt, error) {
	var r models.OrderReceipt
	err := s.db.GetContext(ctx, &r,
		"SELECT "+receiptColumns+" FROM order_receipts WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListReceiptsByUser retrieves a user's receipts, newest first
func (s *Store) ListReceiptsByUser(ctx context.Context, userID string, limit int) ([]models.OrderReceipt, error) {
	if limit <= 0 {
		limit = 50
	}
	receipts := []models.OrderReceipt{}
	err := s.db.SelectContext(ctx, &receipts,
		"SELECT "+receiptColumns+" FROM order_receipts WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2",
		userID, limit)
	return receipts, err
}
