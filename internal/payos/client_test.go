package payos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		BaseURL:     srv.URL,
		ClientID:    "client-id",
		APIKey:      "api-key",
		ChecksumKey: "checksum-key",
	}, zaptest.NewLogger(t))
}

func TestCreatePaymentLinkSignsAndDecodes(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/payment-requests", r.URL.Path)
		assert.Equal(t, "client-id", r.Header.Get("x-client-id"))
		assert.Equal(t, "api-key", r.Header.Get("x-api-key"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "00",
			"desc": "success",
			"data": map[string]any{
				"orderCode":     123456789,
				"paymentLinkId": "link-1",
				"checkoutUrl":   "https://pay.example/link-1",
				"qrCode":        "qr-data",
			},
		})
	})

	link, err := client.CreatePaymentLink(context.Background(), CreateLinkRequest{
		OrderCode:   123456789,
		Amount:      50000,
		Description: "DH 000123",
		ReturnURL:   "https://shop.example/return",
		CancelURL:   "https://shop.example/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "link-1", link.PaymentLinkID)
	assert.Equal(t, "https://pay.example/link-1", link.CheckoutURL)

	// The request signature covers exactly the five prescribed fields.
	want := Sign(map[string]any{
		"amount":      int64(50000),
		"cancelUrl":   "https://shop.example/cancel",
		"description": "DH 000123",
		"orderCode":   int64(123456789),
		"returnUrl":   "https://shop.example/return",
	}, "checksum-key")
	assert.Equal(t, want, gotBody["signature"])
}

func TestCreatePaymentLinkTruncatesDescription(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "00", "data": map[string]any{}})
	})

	long := strings.Repeat("đơn hàng ", 10)
	_, err := client.CreatePaymentLink(context.Background(), CreateLinkRequest{
		OrderCode:   1,
		Amount:      1000,
		Description: long,
	})
	require.NoError(t, err)

	desc, _ := gotBody["description"].(string)
	assert.Len(t, []rune(desc), descriptionLimit)
}

func TestGetPaymentInfoErrorEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/payment-requests/42", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "101", "desc": "not found"})
	})

	_, err := client.GetPaymentInfo(context.Background(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGetPaymentInfoDecodesStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "00",
			"data": map[string]any{"orderCode": 42, "amount": 50000, "status": StatusPaid},
		})
	})

	info, err := client.GetPaymentInfo(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, info.Status)
	assert.Equal(t, int64(50000), info.Amount)
}

func TestUnconfiguredClientRefusesCalls(t *testing.T) {
	client := NewClient(Config{}, zaptest.NewLogger(t))

	_, err := client.CreatePaymentLink(context.Background(), CreateLinkRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = client.GetPaymentInfo(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, client.VerifyWebhookData(map[string]any{}, "sig"))
}
