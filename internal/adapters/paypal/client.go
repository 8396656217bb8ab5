package paypal

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"storefront-checkout/internal/core/domain"
	"storefront-checkout/internal/observability"
)

const (
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
	LiveBaseURL    = "https://api-m.paypal.com"

	maxResponseBytes = 1 << 20
)

// Client is an implementation of the PaymentProcessor port for PayPal Orders v2.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient returns the instrumented client shared by the token provider
// and the orders client.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// NewClient creates an orders client against baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// CreateOrder registers an order with intent CAPTURE for amount.
func (c *Client) CreateOrder(ctx context.Context, accessToken string, amt domain.Money, referenceID string) (*domain.ProcessorOrder, error) {
	body, err := json.Marshal(createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnitRequest{{
			ReferenceID: referenceID,
			Amount: amount{
				CurrencyCode: amt.Currency,
				Value:        amt.Value(),
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}

	raw, err := c.do(ctx, "create_order", accessToken, c.baseURL+"/v2/checkout/orders", body, nil)
	if err != nil {
		return nil, err
	}

	var resp createOrderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode create order response: %w", err)
	}
	return &domain.ProcessorOrder{ID: resp.ID, Status: resp.Status, Amount: amt}, nil
}

// CaptureOrder captures an approved order. The request id makes a repeated
// capture of the same order replay the original response.
func (c *Client) CaptureOrder(ctx context.Context, accessToken, orderID string) (*domain.ProcessorCapture, error) {
	endpoint := c.baseURL + "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	headers := map[string]string{
		"PayPal-Request-Id": "capture-" + orderID,
		"Prefer":            "return=representation",
	}

	raw, err := c.do(ctx, "capture_order", accessToken, endpoint, nil, headers)
	if err != nil {
		return nil, err
	}

	var resp captureOrderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode capture response: %w", err)
	}

	capture := &domain.ProcessorCapture{
		OrderID: resp.ID,
		Status:  resp.Status,
		Raw:     json.RawMessage(raw),
	}
	if len(resp.PurchaseUnits) > 0 {
		capture.ReferenceID = resp.PurchaseUnits[0].ReferenceID
		for _, rec := range resp.PurchaseUnits[0].Payments.Captures {
			s := domain.Settlement{CaptureID: rec.ID, Status: rec.Status}
			if rec.Amount != nil {
				s.Value = rec.Amount.Value
				s.Currency = rec.Amount.CurrencyCode
			}
			capture.Settlements = append(capture.Settlements, s)
		}
	}
	return capture, nil
}

func (c *Client) do(ctx context.Context, operation, accessToken, endpoint string, body []byte, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.ObserveProcessorCall(operation, 0, time.Since(start))
		return nil, fmt.Errorf("paypal %s request failed: %w", operation, err)
	}
	defer resp.Body.Close()
	observability.ObserveProcessorCall(operation, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read paypal %s response: %w", operation, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Operation: operation, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
