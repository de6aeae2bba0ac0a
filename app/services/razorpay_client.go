package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrGatewayRequestFailed is returned when the gateway rejects or fails a request
var ErrGatewayRequestFailed = errors.New("gateway request failed")

// PaymentGateway opens payment orders with the external gateway
type PaymentGateway interface {
	Name() string
	CreateOrder(ctx context.Context, in CreateOrderInput) (*GatewayOrder, error)
}

// CreateOrderInput describes an order in the gateway's minor currency unit
type CreateOrderInput struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// GatewayOrder is the gateway's view of a created order
type GatewayOrder struct {
	ID          string
	AmountMinor int64
	Currency    string
	Receipt     string
	Status      string
}

// RazorpayClient talks to the Razorpay Orders API
type RazorpayClient struct {
	BaseURL    string
	KeyID      string
	KeySecret  string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func NewRazorpayClient(baseURL, keyID, keySecret string, timeout time.Duration) *RazorpayClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.razorpay.com/v1"
	}
	return &RazorpayClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		KeyID:      keyID,
		KeySecret:  keySecret,
		HTTPClient: &http.Client{Timeout: timeout},
		Timeout:    timeout,
	}
}

func (c *RazorpayClient) Name() string { return "razorpay" }

type razorpayOrderReq struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrderResp struct {
	ID       string `json:"id"`
	Entity   string `json:"entity"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type razorpayErrorResp struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder creates an order via POST /orders with basic auth
func (c *RazorpayClient) CreateOrder(ctx context.Context, in CreateOrderInput) (*GatewayOrder, error) {
	body, err := json.Marshal(razorpayOrderReq{
		Amount:   in.AmountMinor,
		Currency: in.Currency,
		Receipt:  in.Receipt,
		Notes:    in.Notes,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayRequestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrGatewayRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr razorpayErrorResp
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Description != "" {
			return nil, fmt.Errorf("%w: status %d: %s: %s", ErrGatewayRequestFailed, resp.StatusCode, apiErr.Error.Code, apiErr.Error.Description)
		}
		return nil, fmt.Errorf("%w: status %d", ErrGatewayRequestFailed, resp.StatusCode)
	}

	var out razorpayOrderResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode order: %v", ErrGatewayRequestFailed, err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: empty order id", ErrGatewayRequestFailed)
	}

	return &GatewayOrder{
		ID:          out.ID,
		AmountMinor: out.Amount,
		Currency:    out.Currency,
		Receipt:     out.Receipt,
		Status:      out.Status,
	}, nil
}

// MockPaymentGateway issues local order ids. Used in development and tests.
type MockPaymentGateway struct {
	mu     sync.Mutex
	Err    error
	Orders []CreateOrderInput
}

func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{}
}

func (g *MockPaymentGateway) Name() string { return "mock" }

func (g *MockPaymentGateway) CreateOrder(ctx context.Context, in CreateOrderInput) (*GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.Orders = append(g.Orders, in)
	id := "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	return &GatewayOrder{
		ID:          id,
		AmountMinor: in.AmountMinor,
		Currency:    in.Currency,
		Receipt:     in.Receipt,
		Status:      "created",
	}, nil
}
