package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	API      APIConfig
	Session  SessionConfig
	Payment  PaymentConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Database DatabaseConfig
	Observ   ObservabilityConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

// APIConfig points the client at the storefront backend.
type APIConfig struct {
	BaseURL   string
	SocketURL string
	Timeout   time.Duration
}

type SessionConfig struct {
	Duration      time.Duration
	StoragePrefix string
}

// PaymentConfig holds the merchant identity embedded in UPI intents.
type PaymentConfig struct {
	PayeeVPA  string
	PayeeName string
	Currency  string
	TaxRate   float64
}

// RedisConfig is optional; an empty Addr keeps persisted keys in memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig is optional; no brokers disables checkout audit events.
type KafkaConfig struct {
	Brokers       []string
	TopicCheckout string
}

// DatabaseConfig is optional; an empty URL disables the receipt ledger.
type DatabaseConfig struct {
	URL string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	apiTimeout, _ := strconv.Atoi(getEnv("API_TIMEOUT_SECONDS", "15"))
	sessionMinutes, _ := strconv.Atoi(getEnv("SESSION_DURATION_MINUTES", "120"))
	taxRate, err := strconv.ParseFloat(getEnv("TAX_RATE", "0.10"), 64)
	if err != nil {
		taxRate = 0.10
	}
	if sessionMinutes <= 0 {
		sessionMinutes = 120
	}

	baseURL := getEnv("API_BASE_URL", "http://localhost:5000/api")

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8090"),
			Env:  getEnv("ENV", "development"),
		},
		API: APIConfig{
			BaseURL:   baseURL,
			SocketURL: getEnv("SOCKET_URL", defaultSocketURL(baseURL)),
			Timeout:   time.Duration(apiTimeout) * time.Second,
		},
		Session: SessionConfig{
			Duration:      time.Duration(sessionMinutes) * time.Minute,
			StoragePrefix: getEnv("STORAGE_PREFIX", "storefront:"),
		},
		Payment: PaymentConfig{
			PayeeVPA:  getEnv("BUSINESS_UPI_ID", "zalya@upi"),
			PayeeName: getEnv("BUSINESS_UPI_NAME", "Zalya"),
			Currency:  getEnv("UPI_CURRENCY", "INR"),
			TaxRate:   taxRate,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(getEnv("KAFKA_BROKERS", "")),
			TopicCheckout: getEnv("KAFKA_TOPIC_CHECKOUT_EVENTS", "checkout-events"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		},
	}

	log.Printf("Config loaded: env=%s, port=%s, api=%s", cfg.Server.Env, cfg.Server.Port, cfg.API.BaseURL)
	return cfg
}

// defaultSocketURL derives the websocket endpoint from the REST base URL by
// dropping a trailing /api and switching the scheme.
func defaultSocketURL(baseURL string) string {
	u := strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/api")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
