package payments

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

	"github.com/imrishuroy/go-storefront-orders/internal/orders"
)

// DefaultBaseURL is the Razorpay REST endpoint.
const DefaultBaseURL = "https://api.razorpay.com"

// GatewayOrder is the reservation a payment attaches to. It carries no
// business data beyond amount, currency and receipt.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt,omitempty"`
	Status   string `json:"status,omitempty"`
}

// GatewayRefund is a refund issued against a captured payment.
type GatewayRefund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status,omitempty"`
}

// Gateway is the subset of the payment gateway API the reconciler needs.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*GatewayOrder, error)
	Refund(ctx context.Context, paymentID string, amountMinor int64) (*GatewayRefund, error)
}

// RazorpayClient calls the Razorpay orders and refunds APIs with basic auth.
type RazorpayClient struct {
	keyID     string
	keySecret string
	baseURL   string
	http      *http.Client
	nowFunc   func() time.Time
}

// NewRazorpayClient returns a client. An empty baseURL means DefaultBaseURL.
func NewRazorpayClient(keyID, keySecret, baseURL string, timeout time.Duration) *RazorpayClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &RazorpayClient{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: timeout},
		nowFunc:   time.Now,
	}
}

// CreateOrder reserves amountMinor (paisa for INR). An empty receipt defaults
// to a timestamp-based one.
func (c *RazorpayClient) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*GatewayOrder, error) {
	if amountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", orders.ErrValidation)
	}
	if currency == "" {
		currency = "INR"
	}
	if receipt == "" {
		receipt = fmt.Sprintf("rcpt_%d", c.nowFunc().UnixMilli())
	}
	req := map[string]any{"amount": amountMinor, "currency": currency, "receipt": receipt}

	var out GatewayOrder
	if err := c.post(ctx, "/v1/orders", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refund refunds amountMinor of a captured payment.
func (c *RazorpayClient) Refund(ctx context.Context, paymentID string, amountMinor int64) (*GatewayRefund, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", orders.ErrValidation)
	}
	var out GatewayRefund
	path := "/v1/payments/" + url.PathEscape(paymentID) + "/refund"
	if err := c.post(ctx, path, map[string]any{"amount": amountMinor}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RazorpayClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal gateway request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		return &GatewayError{
			StatusCode:  resp.StatusCode,
			Code:        apiErr.Error.Code,
			Description: apiErr.Error.Description,
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}
	return nil
}
