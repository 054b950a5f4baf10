package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/your-org/seasonal-storefront/internal/config"
)

// APIError is a non-2xx answer from the processor
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("processor returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("processor returned %d: %s", e.StatusCode, e.Message)
}

// Client is the HTTP processor client. Calls go through a circuit breaker
// that trips on transport failures and 5xx answers.
type Client struct {
	keyID      string
	keySecret  string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *logrus.Logger
}

// NewClient creates a processor client from config
func NewClient(cfg config.PaymentConfig, logger *logrus.Logger) *Client {
	failures := uint32(cfg.BreakerFailures)
	if failures == 0 {
		failures = 5
	}

	c := &Client{
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		baseURL:   cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "payment-processor",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			return err == nil || (errors.As(err, &apiErr) && apiErr.StatusCode < 500)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Payment processor circuit breaker changed state")
		},
	})
	return c
}

type confirmRequest struct {
	ClientSecret   string         `json:"client_secret"`
	PaymentMethod  string         `json:"payment_method"`
	BillingDetails BillingDetails `json:"billing_details"`
}

// CreateAuthorization creates a payment intent for an order
func (c *Client) CreateAuthorization(ctx context.Context, req CreateAuthorizationRequest, idempotencyKey string) (*Authorization, error) {
	body, err := c.makeAPICall(ctx, http.MethodPost, "/authorizations", idempotencyKey, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization: %w", err)
	}

	var auth Authorization
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, fmt.Errorf("failed to parse authorization response: %w", err)
	}
	return &auth, nil
}

// ConfirmPayment attaches a payment method and confirms. Declines come back
// as a failed Confirmation, not as an error.
func (c *Client) ConfirmPayment(ctx context.Context, handle Handle, paymentMethodToken string, billing BillingDetails) (*Confirmation, error) {
	req := confirmRequest{
		ClientSecret:   handle.ClientSecret,
		PaymentMethod:  paymentMethodToken,
		BillingDetails: billing,
	}

	body, err := c.makeAPICall(ctx, http.MethodPost, "/authorizations/"+url.PathEscape(handle.ID)+"/confirm", "", req)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusPaymentRequired {
			return &Confirmation{
				Status:       OutcomeFailed,
				ErrorCode:    apiErr.Code,
				ErrorMessage: apiErr.Message,
			}, nil
		}
		return nil, fmt.Errorf("failed to confirm payment: %w", err)
	}

	var conf Confirmation
	if err := json.Unmarshal(body, &conf); err != nil {
		return nil, fmt.Errorf("failed to parse confirmation response: %w", err)
	}
	return &conf, nil
}

// GetAuthorization fetches the current state of an authorization
func (c *Client) GetAuthorization(ctx context.Context, id string) (*Authorization, error) {
	body, err := c.makeAPICall(ctx, http.MethodGet, "/authorizations/"+url.PathEscape(id), "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization: %w", err)
	}

	var auth Authorization
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, fmt.Errorf("failed to parse authorization response: %w", err)
	}
	return &auth, nil
}

// CancelAuthorization releases the held amount
func (c *Client) CancelAuthorization(ctx context.Context, id string) (*Authorization, error) {
	body, err := c.makeAPICall(ctx, http.MethodPost, "/authorizations/"+url.PathEscape(id)+"/cancel", "cancel-"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel authorization: %w", err)
	}

	var auth Authorization
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, fmt.Errorf("failed to parse authorization response: %w", err)
	}
	return &auth, nil
}

// makeAPICall performs one JSON request through the breaker
func (c *Client) makeAPICall(ctx context.Context, method, endpoint, idempotencyKey string, data interface{}) ([]byte, error) {
	var reqBody []byte
	if data != nil {
		var err error
		reqBody, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request data: %w", err)
		}
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}
		req.SetBasicAuth(c.keyID, c.keySecret)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to make API call: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return nil, decodeAPIError(resp.StatusCode, respBody)
		}
		return respBody, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %v", ErrAuthorizationNotFound, err)
	}
	return body, err
}

func decodeAPIError(status int, body []byte) *APIError {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, &envelope); err == nil && (envelope.Error.Code != "" || envelope.Error.Message != "") {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Message = string(body)
	}
	return apiErr
}

// IsRateLimited reports whether the processor answered 429
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// IsTransient reports whether err is worth retrying: transport failures,
// timeouts, an open breaker and 5xx or 429 answers.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthorizationNotFound) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}
