package biteship

import (
	"encoding/json"
	"fmt"
)

type Item struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SKU         string `json:"sku,omitempty"`
	Value       int64  `json:"value"`
	Quantity    int    `json:"quantity"`
	Weight      int    `json:"weight"`
	Length      int    `json:"length,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

type OrderRequest struct {
	ShipperContactName  string `json:"shipper_contact_name"`
	ShipperContactPhone string `json:"shipper_contact_phone"`
	ShipperContactEmail string `json:"shipper_contact_email,omitempty"`
	ShipperOrganization string `json:"shipper_organization,omitempty"`

	OriginContactName      string `json:"origin_contact_name"`
	OriginContactPhone     string `json:"origin_contact_phone"`
	OriginAddress          string `json:"origin_address"`
	OriginNote             string `json:"origin_note,omitempty"`
	OriginPostalCode       string `json:"origin_postal_code"`
	OriginCollectionMethod string `json:"origin_collection_method"`

	DestinationContactName    string `json:"destination_contact_name"`
	DestinationContactPhone   string `json:"destination_contact_phone"`
	DestinationContactEmail   string `json:"destination_contact_email,omitempty"`
	DestinationAddress        string `json:"destination_address"`
	DestinationArea           string `json:"destination_area,omitempty"`
	DestinationPostalCode     string `json:"destination_postal_code"`
	DestinationNote           string `json:"destination_note,omitempty"`
	DestinationCashOnDelivery int64  `json:"destination_cash_on_delivery"`

	CourierCompany   string `json:"courier_company"`
	CourierType      string `json:"courier_type"`
	CourierInsurance int64  `json:"courier_insurance"`
	DeliveryType     string `json:"delivery_type"`
	PaymentType      string `json:"payment_type"`
	OrderNote        string `json:"order_note,omitempty"`
	ReferenceID      string `json:"reference_id,omitempty"`

	Value  int64  `json:"value"`
	Weight int    `json:"weight"`
	Length int    `json:"length"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Items  []Item `json:"items"`
}

type Courier struct {
	Company     string `json:"company"`
	Type        string `json:"type"`
	Service     string `json:"service"`
	WaybillID   string `json:"waybill_id"`
	TrackingID  string `json:"tracking_id"`
	Link        string `json:"link"`
	TrackingURL string `json:"tracking_url"`
}

type orderBody struct {
	ID             string   `json:"id"`
	WaybillID      string   `json:"waybill_id"`
	Waybill        string   `json:"waybill"`
	TrackingNumber string   `json:"tracking_number"`
	Courier        *Courier `json:"courier"`
}

// OrderResponse accepts the order either at the top level or wrapped in
// "data"; both shapes are returned by the API depending on the endpoint
// version.
type OrderResponse struct {
	Success *bool      `json:"success"`
	Message string     `json:"message"`
	Error   string     `json:"error"`
	Data    *orderBody `json:"data"`
	orderBody
}

func (r *OrderResponse) body() *orderBody {
	if r.Data != nil {
		return r.Data
	}
	return &r.orderBody
}

func (r *OrderResponse) OrderID() string {
	return r.body().ID
}

// Waybill returns the tracking number, looking at courier.waybill_id,
// waybill_id, waybill and tracking_number in that order.
func (r *OrderResponse) Waybill() string {
	b := r.body()
	if b.Courier != nil && b.Courier.WaybillID != "" {
		return b.Courier.WaybillID
	}
	for _, candidate := range []string{b.WaybillID, b.Waybill, b.TrackingNumber} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func (r *OrderResponse) CourierCode() string {
	if c := r.body().Courier; c != nil {
		return c.Company
	}
	return ""
}

func (r *OrderResponse) CourierService() string {
	c := r.body().Courier
	if c == nil {
		return ""
	}
	if c.Type != "" {
		return c.Type
	}
	return c.Service
}

func (r *OrderResponse) TrackingURL() string {
	c := r.body().Courier
	if c == nil {
		return ""
	}
	if c.Link != "" {
		return c.Link
	}
	return c.TrackingURL
}

// OrderResult is the outcome of an order call that reached the API.
type OrderResult struct {
	StatusCode int
	Body       json.RawMessage
	Response   *OrderResponse
}

func (r *OrderResult) OK() bool {
	if r.StatusCode < 200 || r.StatusCode > 299 {
		return false
	}
	return r.Response == nil || r.Response.Success == nil || *r.Response.Success
}

func (r *OrderResult) Message() string {
	if r.Response != nil {
		if r.Response.Error != "" {
			return r.Response.Error
		}
		if r.Response.Message != "" {
			return r.Response.Message
		}
	}
	return fmt.Sprintf("biteship returned status %d", r.StatusCode)
}

type RatesRequest struct {
	OriginPostalCode      string `json:"origin_postal_code"`
	DestinationPostalCode string `json:"destination_postal_code"`
	Couriers              string `json:"couriers"`
	Items                 []Item `json:"items"`
}

type Pricing struct {
	CourierName        string `json:"courier_name"`
	CourierCode        string `json:"courier_code"`
	CourierServiceName string `json:"courier_service_name"`
	CourierServiceCode string `json:"courier_service_code"`
	Description        string `json:"description"`
	Duration           string `json:"duration"`
	Type               string `json:"type"`
	Price              int64  `json:"price"`
}

type RatesResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Pricing []Pricing `json:"pricing"`
}

type TrackingEvent struct {
	Note      string `json:"note"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
}

type Tracking struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	ID        string          `json:"id"`
	WaybillID string          `json:"waybill_id"`
	Status    string          `json:"status"`
	Link      string          `json:"link"`
	Courier   *Courier        `json:"courier"`
	History   []TrackingEvent `json:"history"`
}

type registerTrackingRequest struct {
	WaybillID   string `json:"waybill_id"`
	CourierCode string `json:"courier_code"`
}

// APIError is returned for non-2xx responses of calls that have no
// soft-failure result.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("biteship: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("biteship: status %d", e.StatusCode)
}
