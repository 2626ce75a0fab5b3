package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"storefront-client/internal/clock"
	"storefront-client/internal/models"
	"storefront-client/internal/storage"
	"storefront-client/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationFeed keeps realtime product notifications, newest first,
// mirrored under the notifications key.
type NotificationFeed struct {
	store  storage.Store
	clock  clock.Clock
	logger *zap.Logger

	mu    sync.RWMutex
	items []models.Notification
}

// NewNotificationFeed creates an empty feed
func NewNotificationFeed(store storage.Store, clk clock.Clock) *NotificationFeed {
	return &NotificationFeed{
		store:  store,
		clock:  clk,
		logger: util.GetLogger(),
		items:  []models.Notification{},
	}
}

// Load replaces the feed with the persisted one. An unreadable document is
// logged and ignored.
func (f *NotificationFeed) Load(ctx context.Context) error {
	raw, ok, err := f.store.Get(ctx, storage.KeyNotifications)
	if err != nil {
		return fmt.Errorf("failed to read notifications: %w", err)
	}
	if !ok || raw == "" {
		return nil
	}

	var items []models.Notification
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		f.logger.Warn("Failed to parse persisted notifications", zap.Error(err))
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if items == nil {
		items = []models.Notification{}
	}
	f.items = items
	return nil
}

// Add stores a notification unless one with the same id exists. It reports
// whether the feed changed.
func (f *NotificationFeed) Add(ctx context.Context, in *models.NotificationInput, defaultType string) (bool, error) {
	n := models.Notification{
		ID:                    in.ID,
		Title:                 in.Title,
		Message:               in.Message,
		Type:                  in.Type,
		ProductID:             in.ProductID,
		ImageURL:              in.ImageURL,
		ActionURL:             in.ActionURL,
		Price:                 in.Price,
		DiscountPrice:         in.DiscountPrice,
		PreviousPrice:         in.PreviousPrice,
		PreviousDiscountPrice: in.PreviousDiscountPrice,
	}
	if n.ID == "" {
		n.ID = uuid.NewString()[:8]
	}
	if n.Type == "" {
		n.Type = defaultType
	}
	n.Timestamp = f.clock.Now()
	if in.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, in.Timestamp); err == nil {
			n.Timestamp = ts
		}
	}

	f.mu.Lock()
	for _, existing := range f.items {
		if existing.ID == n.ID {
			f.mu.Unlock()
			return false, nil
		}
	}
	f.items = append([]models.Notification{n}, f.items...)
	f.mu.Unlock()

	util.NotificationsReceivedTotal.WithLabelValues(n.Type).Inc()
	return true, f.persist(ctx)
}

// List returns a copy of the feed, newest first.
func (f *NotificationFeed) List() []models.Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]models.Notification{}, f.items...)
}

// UnreadCount counts unread notifications.
func (f *NotificationFeed) UnreadCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, item := range f.items {
		if !item.Read {
			n++
		}
	}
	return n
}

// MarkRead marks one notification read. It reports whether id was found.
func (f *NotificationFeed) MarkRead(ctx context.Context, id string) (bool, error) {
	found := false
	f.update(func(items []models.Notification) []models.Notification {
		for i := range items {
			if items[i].ID == id {
				items[i].Read = true
				found = true
			}
		}
		return items
	})
	if !found {
		return false, nil
	}
	return true, f.persist(ctx)
}

func (f *NotificationFeed) MarkAllRead(ctx context.Context) error {
	f.update(func(items []models.Notification) []models.Notification {
		for i := range items {
			items[i].Read = true
		}
		return items
	})
	return f.persist(ctx)
}

// Remove deletes a notification. It reports whether id was found.
func (f *NotificationFeed) Remove(ctx context.Context, id string) (bool, error) {
	found := false
	f.update(func(items []models.Notification) []models.Notification {
		kept := items[:0]
		for _, item := range items {
			if item.ID == id {
				found = true
				continue
			}
			kept = append(kept, item)
		}
		return kept
	})
	if !found {
		return false, nil
	}
	return true, f.persist(ctx)
}

func (f *NotificationFeed) update(fn func([]models.Notification) []models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = fn(append([]models.Notification{}, f.items...))
}

func (f *NotificationFeed) persist(ctx context.Context) error {
	data, err := json.Marshal(f.List())
	if err != nil {
		return fmt.Errorf("failed to marshal notifications: %w", err)
	}
	if err := f.store.Set(ctx, storage.KeyNotifications, string(data)); err != nil {
		return fmt.Errorf("failed to persist notifications: %w", err)
	}
	return nil
}
