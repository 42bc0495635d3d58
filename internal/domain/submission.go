package domain

import (
	"encoding/json"
	"time"
)

type SubmissionStatus string

const (
	SubmissionStatusDraft     SubmissionStatus = "draft"
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	SubmissionStatusPaid      SubmissionStatus = "paid"
	SubmissionStatusFailed    SubmissionStatus = "failed"
)

// SubmissionItem is a cart line frozen at checkout time. Weight is in grams
// and dimensions in centimetres; zero means "not given".
type SubmissionItem struct {
	ProductID string `json:"produk_id"`
	Name      string `json:"nama_produk"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"harga_satuan"`
	Size      string `json:"size,omitempty"`
	Weight    int    `json:"berat,omitempty"`
	Length    int    `json:"panjang,omitempty"`
	Width     int    `json:"lebar,omitempty"`
	Height    int    `json:"tinggi,omitempty"`
}

// CheckoutSubmission is a draft order. Its ID is sent to the payment gateway
// as the merchant reference.
type CheckoutSubmission struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Total            int64            `json:"total"`
	Items            []SubmissionItem `json:"items"`
	ShippingMethod   string           `json:"shipping_method"`
	ShippingAddress  *ShippingAddress `json:"shipping_address,omitempty"`
	Status           SubmissionStatus `json:"status"`
	PaymentReference *string          `json:"payment_reference,omitempty"`
	PaymentDetails   json.RawMessage  `json:"payment_details,omitempty"`
	PaymentExpiredAt *time.Time       `json:"payment_expired_at,omitempty"`
}
