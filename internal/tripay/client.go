// Package tripay is a client for the payment gateway's transaction API.
package tripay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/joao-fontenele/storefront-payments/internal/config"
	"github.com/joao-fontenele/storefront-payments/internal/signature"
)

// TransactionTTL is how long a created transaction can be paid.
const TransactionTTL = 24 * time.Hour

type OrderItem struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

// TransactionInput is what the caller knows about the purchase; the client
// adds merchant settings, expiry and signature.
type TransactionInput struct {
	Method        string
	MerchantRef   string
	Amount        int64
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Items         []OrderItem
}

type transactionRequest struct {
	Method        string      `json:"method"`
	MerchantRef   string      `json:"merchant_ref"`
	Amount        int64       `json:"amount"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	CustomerPhone string      `json:"customer_phone"`
	OrderItems    []OrderItem `json:"order_items"`
	CallbackURL   string      `json:"callback_url,omitempty"`
	ReturnURL     string      `json:"return_url,omitempty"`
	ExpiredTime   int64       `json:"expired_time"`
	Signature     string      `json:"signature"`
}

type transactionData struct {
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	CheckoutURL string `json:"checkout_url"`
	PayURL      string `json:"pay_url"`
	PaymentURL  string `json:"payment_url"`
	ExpiredTime int64  `json:"expired_time"`
}

type transactionResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    *transactionData `json:"data"`
}

type Transaction struct {
	Reference   string
	CheckoutURL string
	Status      string
	ExpiredAt   time.Time
	Raw         json.RawMessage
}

var ErrNoReference = errors.New("gateway response has no transaction reference")

type Client struct {
	http         *resty.Client
	signer       *signature.Verifier
	merchantCode string
	callbackURL  string
	returnURL    string
	now          func() time.Time
}

func NewClient(cfg config.Tripay, httpClient *http.Client) *Client {
	c := resty.NewWithClient(httpClient).
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:         c,
		signer:       signature.NewVerifier(cfg.PrivateKey),
		merchantCode: cfg.MerchantCode,
		callbackURL:  cfg.CallbackURL,
		returnURL:    cfg.ReturnURL,
		now:          time.Now,
	}
}

// CreateTransaction opens a closed-payment transaction for the input.
func (c *Client) CreateTransaction(ctx context.Context, in TransactionInput) (*Transaction, error) {
	expiresAt := c.now().Add(TransactionTTL)
	req := transactionRequest{
		Method:        in.Method,
		MerchantRef:   in.MerchantRef,
		Amount:        in.Amount,
		CustomerName:  in.CustomerName,
		CustomerEmail: in.CustomerEmail,
		CustomerPhone: in.CustomerPhone,
		OrderItems:    in.Items,
		CallbackURL:   c.callbackURL,
		ReturnURL:     c.returnURL,
		ExpiredTime:   expiresAt.Unix(),
		Signature:     c.Signature(in.MerchantRef, in.Amount),
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/transaction/create")
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	var out transactionResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("create transaction: status %d: decode response: %w", resp.StatusCode(), err)
	}
	if !resp.IsSuccess() || !out.Success {
		return nil, fmt.Errorf("create transaction: status %d: %s", resp.StatusCode(), out.Message)
	}
	if out.Data == nil || out.Data.Reference == "" {
		return nil, ErrNoReference
	}

	tx := &Transaction{
		Reference:   out.Data.Reference,
		CheckoutURL: firstNonEmpty(out.Data.CheckoutURL, out.Data.PayURL, out.Data.PaymentURL),
		Status:      out.Data.Status,
		ExpiredAt:   expiresAt,
		Raw:         json.RawMessage(resp.Body()),
	}
	if out.Data.ExpiredTime > 0 {
		tx.ExpiredAt = time.Unix(out.Data.ExpiredTime, 0)
	}

	return tx, nil
}

// Signature is the HMAC the gateway expects on a transaction request.
func (c *Client) Signature(merchantRef string, amount int64) string {
	return c.signer.Sign(c.merchantCode, merchantRef, strconv.FormatInt(amount, 10))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
