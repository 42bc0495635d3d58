package domain

import "encoding/json"

// ShippingAddress is the address captured at checkout. The same document is
// stored on the order, where the shipment metadata lives under Biteship.
type ShippingAddress struct {
	Name       string `json:"nama"`
	Phone      string `json:"telepon"`
	Email      string `json:"email,omitempty"`
	Street     string `json:"alamat"`
	District   string `json:"kecamatan,omitempty"`
	City       string `json:"kota,omitempty"`
	Province   string `json:"provinsi,omitempty"`
	PostalCode string `json:"kode_pos"`
	Note       string `json:"catatan,omitempty"`

	Biteship *ShipmentMeta `json:"biteship,omitempty"`
}

// ShipmentMeta is the audit record of a shipment created with the aggregator.
type ShipmentMeta struct {
	OrderID        string          `json:"order_id,omitempty"`
	CourierCode    string          `json:"courier_code,omitempty"`
	CourierService string          `json:"courier_service,omitempty"`
	TrackingURL    string          `json:"tracking_url,omitempty"`
	Waybill        string          `json:"waybill,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// IsZero reports whether no address was captured at all.
func (a *ShippingAddress) IsZero() bool {
	return a == nil || (a.Name == "" && a.Phone == "" && a.Street == "" && a.PostalCode == "" && a.City == "")
}
