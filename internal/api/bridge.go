package api

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"storefront-client/internal/models"
)

// ShellBridge hands navigations and order confirmations to the UI shell
// polling the control API. It satisfies the checkout Navigator and
// ConfirmationView.
type ShellBridge struct {
	mu           sync.Mutex
	pending      string
	confirmation *models.OrderResult
}

func NewShellBridge() *ShellBridge {
	return &ShellBridge{}
}

// Navigate queues uri for the shell. Only absolute URIs can be handed off.
func (b *ShellBridge) Navigate(ctx context.Context, uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid navigation target: %w", err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("navigation target %q has no scheme", uri)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = uri
	return nil
}

// TakeNavigation returns and clears the queued navigation.
func (b *ShellBridge) TakeNavigation() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	uri := b.pending
	b.pending = ""
	return uri, uri != ""
}

func (b *ShellBridge) ShowConfirmation(result *models.OrderResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmation = result
}

// Confirmation returns the last confirmed order.
func (b *ShellBridge) Confirmation() *models.OrderResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.confirmation
}
