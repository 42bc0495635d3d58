// Package biteship is a client for the shipping aggregator API: courier
// rates, order (shipment) creation and waybill tracking.
package biteship

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	http *resty.Client
}

// NewClient builds a client on top of httpClient, which carries the timeout
// and the tracing transport.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	c := resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetHeader("Authorization", apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: c}
}

// CreateOrder creates a shipment. API-level failures are reported through
// the result; the error is only set when the call itself failed.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/v1/orders")
	if err != nil {
		return nil, fmt.Errorf("create biteship order: %w", err)
	}

	result := &OrderResult{
		StatusCode: resp.StatusCode(),
		Body:       json.RawMessage(resp.Body()),
	}

	var decoded OrderResponse
	if err := json.Unmarshal(resp.Body(), &decoded); err == nil {
		result.Response = &decoded
	} else {
		result.Body = nil
		if len(resp.Body()) > 0 {
			raw, _ := json.Marshal(resp.String())
			result.Body = raw
		}
	}

	return result, nil
}

func (c *Client) Rates(ctx context.Context, req RatesRequest) (*RatesResponse, error) {
	var out RatesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/v1/rates/couriers")
	if err != nil {
		return nil, fmt.Errorf("biteship rates: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// Track looks a waybill up. The aggregator only knows waybills it created or
// was told about, so on 400/404 the waybill is registered and the lookup is
// retried once.
func (c *Client) Track(ctx context.Context, waybill, courier string) (*Tracking, error) {
	tracking, err := c.getTracking(ctx, waybill, courier)
	if err == nil {
		return tracking, nil
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || (apiErr.StatusCode != http.StatusBadRequest && apiErr.StatusCode != http.StatusNotFound) {
		return nil, err
	}

	if err := c.registerTracking(ctx, waybill, courier); err != nil {
		return nil, fmt.Errorf("register tracking: %w", err)
	}

	return c.getTracking(ctx, waybill, courier)
}

func (c *Client) getTracking(ctx context.Context, waybill, courier string) (*Tracking, error) {
	var out Tracking
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"waybill": waybill, "courier": courier}).
		SetResult(&out).
		Get("/v1/trackings/{waybill}/couriers/{courier}")
	if err != nil {
		return nil, fmt.Errorf("biteship tracking: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, apiError(resp)
	}
	return &out, nil
}

func (c *Client) registerTracking(ctx context.Context, waybill, courier string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(registerTrackingRequest{WaybillID: waybill, CourierCode: courier}).
		Post("/v1/trackings")
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return apiError(resp)
	}
	return nil
}

func apiError(resp *resty.Response) error {
	e := &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(resp.Body(), &body) == nil {
		e.Message = body.Error
		if e.Message == "" {
			e.Message = body.Message
		}
	}
	return e
}
