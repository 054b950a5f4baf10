// Package sms sends text messages through a Twilio-compatible REST API.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/your-org/seasonal-storefront/internal/config"
)

// Client posts messages to the provider's Messages resource
type Client struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
}

// Message is the provider's view of a sent message
type Message struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
	To     string `json:"to"`
}

// ProviderError is a non-2xx response from the provider
type ProviderError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("sms provider returned status %d: %s (code %d)", e.StatusCode, e.Message, e.Code)
}

// NewClient creates an SMS client. It returns nil when SMS is disabled.
func NewClient(cfg config.SMSConfig) *Client {
	if !cfg.Enabled {
		return nil
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers body to the E.164 number to
func (c *Client) Send(ctx context.Context, to, body string) (*Message, error) {
	if to == "" {
		return nil, fmt.Errorf("sms recipient is empty")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create sms request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := &ProviderError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(perr)
		return nil, perr
	}

	var msg Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("failed to decode sms response: %w", err)
	}
	return &msg, nil
}
