// Package realtime owns the authenticated websocket event channel. A Manager
// is connected when a session is established and torn down on logout.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"storefront-client/internal/models"
	"storefront-client/internal/util"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// MessageHandler consumes one frame read from the channel.
type MessageHandler func(ctx context.Context, msg models.RealtimeMessage) error

// Manager holds at most one live connection.
type Manager struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger

	mu      sync.Mutex
	handler MessageHandler
	conn    *websocket.Conn
	token   string
	cancel  context.CancelFunc
}

// NewManager creates a manager for the given websocket endpoint.
func NewManager(socketURL string) *Manager {
	return &Manager{
		url: socketURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: util.GetLogger(),
	}
}

// SetHandler registers the consumer of incoming frames.
func (m *Manager) SetHandler(handler MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Connected reports whether a connection is open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Connect opens the channel authenticated with token. Reconnecting with the
// token of the open connection is a no-op; a different token replaces it.
func (m *Manager) Connect(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil && m.token == token {
		return nil
	}
	m.closeLocked()

	u, err := url.Parse(m.url)
	if err != nil {
		return fmt.Errorf("invalid socket URL: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := m.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect event channel (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect event channel: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.conn = conn
	m.token = token
	m.cancel = cancel

	go m.readLoop(loopCtx, conn)
	go m.pingLoop(loopCtx, conn)

	m.logger.Info("Event channel connected", zap.String("url", m.url))
	return nil
}

// Disconnect closes the open connection. Safe to call when disconnected.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil
	}
	m.closeLocked()
	m.logger.Info("Event channel disconnected")
	return nil
}

func (m *Manager) closeLocked() {
	if m.conn == nil {
		return
	}
	m.cancel()
	_ = m.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	_ = m.conn.Close()
	m.conn = nil
	m.token = ""
	m.cancel = nil
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			dropped := m.conn == conn
			if dropped {
				m.cancel()
				_ = conn.Close()
				m.conn = nil
				m.token = ""
				m.cancel = nil
			}
			m.mu.Unlock()

			if dropped {
				m.logger.Warn("Event channel dropped", zap.Error(err))
			}
			return
		}

		msg, err := decodeFrame(data)
		if err != nil {
			m.logger.Warn("Discarding malformed event frame", zap.Error(err))
			continue
		}

		m.mu.Lock()
		handler := m.handler
		m.mu.Unlock()
		if handler == nil {
			continue
		}
		if err := handler(ctx, msg); err != nil {
			m.logger.Error("Error handling event",
				zap.String("type", msg.Type),
				zap.Error(err))
		}
	}
}

func (m *Manager) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// decodeFrame accepts both {"type","payload"} frames and flat frames whose
// remaining fields are the payload.
func decodeFrame(data []byte) (models.RealtimeMessage, error) {
	var msg models.RealtimeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	if msg.Type == "" {
		return msg, fmt.Errorf("frame has no type")
	}
	if len(msg.Payload) == 0 {
		msg.Payload = json.RawMessage(data)
	}
	return msg, nil
}
