// Package payos is a minimal client for the PayOS merchant API: link
// creation, payment info polling and webhook signature verification.
package payos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	StatusPaid      = "PAID"
	StatusPending   = "PENDING"
	StatusCancelled = "CANCELLED"
	StatusExpired   = "EXPIRED"

	successCode = "00"

	descriptionLimit = 25
)

var ErrNotConfigured = errors.New("payos_not_configured")

type Config struct {
	BaseURL     string
	ClientID    string
	APIKey      string
	ChecksumKey string
	Timeout     time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log.Named("payos.client"),
	}
}

// Configured reports whether gateway credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.ClientID != "" && c.cfg.APIKey != "" && c.cfg.ChecksumKey != ""
}

type LinkItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

type CreateLinkRequest struct {
	OrderCode   int64
	Amount      int64
	Description string
	BuyerName   string
	BuyerEmail  string
	BuyerPhone  string
	Items       []LinkItem
	ReturnURL   string
	CancelURL   string
}

type PaymentLink struct {
	OrderCode     int64  `json:"orderCode"`
	PaymentLinkID string `json:"paymentLinkId"`
	CheckoutURL   string `json:"checkoutUrl"`
	QRCode        string `json:"qrCode"`
}

type PaymentInfo struct {
	OrderCode  int64  `json:"orderCode"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amountPaid"`
	Status     string `json:"status"`
}

type envelope struct {
	Code string          `json:"code"`
	Desc string          `json:"desc"`
	Data json.RawMessage `json:"data"`
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// CreatePaymentLink requests a checkout link. The request body is signed
// over the five fields PayOS prescribes for this endpoint.
func (c *Client) CreatePaymentLink(ctx context.Context, req CreateLinkRequest) (*PaymentLink, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	description := truncate(req.Description, descriptionLimit)
	signature := Sign(map[string]any{
		"amount":      req.Amount,
		"cancelUrl":   req.CancelURL,
		"description": description,
		"orderCode":   req.OrderCode,
		"returnUrl":   req.ReturnURL,
	}, c.cfg.ChecksumKey)

	body := map[string]any{
		"orderCode":   req.OrderCode,
		"amount":      req.Amount,
		"description": description,
		"buyerName":   req.BuyerName,
		"buyerEmail":  req.BuyerEmail,
		"buyerPhone":  req.BuyerPhone,
		"items":       req.Items,
		"returnUrl":   req.ReturnURL,
		"cancelUrl":   req.CancelURL,
		"signature":   signature,
	}

	var link PaymentLink
	if err := c.do(ctx, http.MethodPost, "/v2/payment-requests", body, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// GetPaymentInfo polls the gateway for the current payment state.
func (c *Client) GetPaymentInfo(ctx context.Context, orderCode int64) (*PaymentInfo, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var info PaymentInfo
	path := fmt.Sprintf("/v2/payment-requests/%d", orderCode)
	if err := c.do(ctx, http.MethodGet, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CancelPaymentLink voids an open checkout link.
func (c *Client) CancelPaymentLink(ctx context.Context, orderCode int64, reason string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	path := fmt.Sprintf("/v2/payment-requests/%d/cancel", orderCode)
	body := map[string]any{"cancellationReason": reason}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// VerifyWebhookData checks the webhook's data signature.
func (c *Client) VerifyWebhookData(data map[string]any, signature string) bool {
	if c.cfg.ChecksumKey == "" {
		return false
	}
	return VerifySignature(data, signature, c.cfg.ChecksumKey)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", c.cfg.ClientID)
	req.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("payos: decode response: %w", err)
	}
	if env.Code != successCode {
		return fmt.Errorf("payos: %s (code %s)", env.Desc, env.Code)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("payos: decode data: %w", err)
		}
	}
	return nil
}
