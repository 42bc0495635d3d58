package domain

import "encoding/json"

// ShipmentResult is the outcome of a shipment creation call. It is not stored
// as is; the order is updated from it.
type ShipmentResult struct {
	Success        bool            `json:"success"`
	Waybill        string          `json:"waybill,omitempty"`
	CourierCode    string          `json:"courier_code,omitempty"`
	CourierService string          `json:"courier_service,omitempty"`
	TrackingURL    string          `json:"tracking_url,omitempty"`
	OrderID        string          `json:"order_id,omitempty"`
	Message        string          `json:"message,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// Meta converts a successful result into the metadata stored on the order.
func (r *ShipmentResult) Meta() *ShipmentMeta {
	return &ShipmentMeta{
		OrderID:        r.OrderID,
		CourierCode:    r.CourierCode,
		CourierService: r.CourierService,
		TrackingURL:    r.TrackingURL,
		Waybill:        r.Waybill,
		Raw:            r.Raw,
	}
}
