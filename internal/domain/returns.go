package domain

import (
	"encoding/json"
	"time"
)

type ReturnStatus string

const (
	ReturnStatusRequested ReturnStatus = "requested"
	ReturnStatusApproving ReturnStatus = "approving"
	ReturnStatusApproved  ReturnStatus = "approved"
	ReturnStatusRejected  ReturnStatus = "rejected"
)

type Return struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	Reason         string          `json:"reason"`
	Status         ReturnStatus    `json:"status"`
	ReturnWaybill  *string         `json:"return_waybill,omitempty"`
	ReturnShipment json.RawMessage `json:"return_shipment,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
