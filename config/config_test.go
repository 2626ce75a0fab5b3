package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSocketURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:5000/ws", defaultSocketURL("http://localhost:5000/api"))
	assert.Equal(t, "wss://shop.example.com/ws", defaultSocketURL("https://shop.example.com/api/"))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitList("a:9092, ,b:9092"))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SESSION_DURATION_MINUTES", "")
	t.Setenv("API_BASE_URL", "http://api.test/api")
	t.Setenv("SOCKET_URL", "")
	t.Setenv("TAX_RATE", "not-a-number")

	cfg := Load()

	assert.Equal(t, 2*time.Hour, cfg.Session.Duration)
	assert.Equal(t, "ws://api.test/ws", cfg.API.SocketURL)
	assert.Equal(t, 0.10, cfg.Payment.TaxRate)
	assert.Equal(t, "INR", cfg.Payment.Currency)
}
