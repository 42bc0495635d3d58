package domain

import "encoding/json"

// PaymentNotice is the part of a gateway callback the pipeline acts on.
// Payload keeps the raw callback for the order's payment_details.
type PaymentNotice struct {
	Reference     string
	MerchantRef   string
	Status        string
	PaymentMethod string
	Payload       json.RawMessage
}
