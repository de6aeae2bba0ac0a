package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRazorpayClient_CreateOrder(t *testing.T) {
	var gotBody razorpayOrderReq
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_9A33XWu170gUtm","entity":"order","amount":500000,"currency":"INR","receipt":"r-1","status":"created"}`))
	}))
	defer server.Close()

	client := NewRazorpayClient(server.URL, "rzp_test_key", "rzp_test_secret", 2*time.Second)
	order, err := client.CreateOrder(context.Background(), CreateOrderInput{
		AmountMinor: 500000,
		Currency:    "INR",
		Receipt:     "r-1",
		Notes:       map[string]string{"campaign_id": "7"},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_9A33XWu170gUtm", order.ID)
	assert.Equal(t, int64(500000), order.AmountMinor)
	assert.Equal(t, int64(500000), gotBody.Amount)
	assert.Equal(t, "7", gotBody.Notes["campaign_id"])
}

func TestRazorpayClient_CreateOrderErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"api error", http.StatusBadRequest, `{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`},
		{"server error", http.StatusBadGateway, `oops`},
		{"empty id", http.StatusOK, `{"id":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			}))
			defer server.Close()

			client := NewRazorpayClient(server.URL, "k", "s", time.Second)
			_, err := client.CreateOrder(context.Background(), CreateOrderInput{AmountMinor: 100, Currency: "INR"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrGatewayRequestFailed))
		})
	}
}

func TestMockPaymentGateway(t *testing.T) {
	gw := NewMockPaymentGateway()
	order, err := gw.CreateOrder(context.Background(), CreateOrderInput{AmountMinor: 100, Currency: "INR", Receipt: "x"})
	require.NoError(t, err)
	assert.Len(t, order.ID, len("order_")+14)
	assert.Len(t, gw.Orders, 1)

	gw.Err = ErrGatewayRequestFailed
	_, err = gw.CreateOrder(context.Background(), CreateOrderInput{AmountMinor: 100, Currency: "INR"})
	assert.ErrorIs(t, err, ErrGatewayRequestFailed)
}
