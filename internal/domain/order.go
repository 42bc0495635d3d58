package domain

import (
	"encoding/json"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

const (
	// ShippingResiPending is stored in shipping_resi while no courier waybill exists yet.
	ShippingResiPending = "Pesanan belum dikirim ke jasa kirim"

	ShippingStatusPacking = "packing"
)

type OrderItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
	Size        string `json:"size,omitempty"`
}

type Order struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	OrderNumber      string          `json:"order_number"`
	PaymentReference string          `json:"payment_reference"`
	TotalAmount      int64           `json:"total_amount"`
	Status           OrderStatus     `json:"status"`
	PaymentMethod    string          `json:"payment_method"`
	ShippingAddress  ShippingAddress `json:"shipping_address_json"`
	ShippingStatus   string          `json:"shipping_status"`
	ShippingResi     *string         `json:"shipping_resi"`
	PaymentDetails   json.RawMessage `json:"payment_details,omitempty"`
	PaymentExpiredAt *time.Time      `json:"payment_expired_at,omitempty"`
	Items            []OrderItem     `json:"items"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Resi returns the stored waybill, or "" when none is set.
func (o *Order) Resi() string {
	if o.ShippingResi == nil {
		return ""
	}
	return *o.ShippingResi
}
