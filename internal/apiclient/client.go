// Package apiclient talks to the storefront REST backend. Every endpoint
// replies with a {success, message} envelope; a false success or a non-2xx
// status is returned as *APIError.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront-client/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client is the HTTP client for the storefront API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	logger     *zap.Logger
}

// NewClient creates a client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: map[string]string{
			"Accept":     "application/json",
			"User-Agent": "storefront-client/1.0",
		},
		logger: util.GetLogger(),
	}, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is a rejected request. Message is the server's message when it
// sent one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// MessageOf returns the server message carried by err, or "".
func MessageOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// request is one outbound call.
type request struct {
	method      string
	path        string
	token       string
	body        interface{}
	rawBody     io.Reader
	contentType string
}

// do executes req and decodes the response body into out when out is non-nil.
func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	var bodyReader io.Reader
	contentType := req.contentType
	switch {
	case req.rawBody != nil:
		bodyReader = req.rawBody
	case req.body != nil:
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	requestID := uuid.New().String()
	httpReq.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		util.APIRequestDuration.WithLabelValues(req.method, req.path, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	util.APIRequestDuration.WithLabelValues(req.method, req.path, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.logger.Debug("API request rejected",
			zap.String("request_id", requestID),
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Int("status", resp.StatusCode))
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("decoding response from %s: %w", req.path, decodeErr)
	}
	if env.Success != nil && !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request failed"
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response from %s: %w", req.path, err)
		}
	}
	return nil
}
