// Package orderclient talks to the order service's JSON API. It lets the
// checkout run against a remote order service.
package orderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/your-org/seasonal-storefront/internal/domain/order"
	"github.com/your-org/seasonal-storefront/internal/pkg/auth"
)

// Client is an HTTP client for /api/v1/orders
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// HTTPError is a response the client could not map to an order error
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("order service returned status %d: %s", e.StatusCode, e.Message)
}

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details string          `json:"details"`
}

// New creates a client for the service at baseURL, e.g. http://orders:8080
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v1/orders",
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateOrder calls POST /orders
func (c *Client) CreateOrder(ctx context.Context, req *order.CreateOrderRequest) (*order.CreateOrderResult, error) {
	var res order.CreateOrderResult
	headers := map[string]string{"Idempotency-Key": req.IdempotencyKey}
	if err := c.do(ctx, http.MethodPost, "", req, headers, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateStatus calls POST /orders/:id/status
func (c *Client) UpdateStatus(ctx context.Context, orderID string, req order.StatusUpdateRequest) (*order.Order, error) {
	var o order.Order
	if err := c.do(ctx, http.MethodPost, "/"+url.PathEscape(orderID)+"/status", req, nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// GetOrder calls GET /orders/:id
func (c *Client) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	var o order.Order
	if err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(orderID), nil, nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, headers map[string]string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := auth.TokenFromContext(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("order service request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return &HTTPError{StatusCode: resp.StatusCode, Message: "unreadable response body"}
	}

	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, env)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode order service response: %w", err)
	}
	return nil
}

func decodeError(status int, env envelope) error {
	msg := env.Error
	if env.Details != "" {
		msg = msg + ": " + env.Details
	}
	if sentinel := order.ErrorFromCode(env.Code); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", order.ErrOrderNotFound, msg)
	}
	return &HTTPError{StatusCode: status, Message: msg}
}
