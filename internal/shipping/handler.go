package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/storefront-payments/internal/biteship"
	"github.com/joao-fontenele/storefront-payments/internal/domain"
)

type AggregatorAPI interface {
	Rates(ctx context.Context, req biteship.RatesRequest) (*biteship.RatesResponse, error)
	Track(ctx context.Context, waybill, courier string) (*biteship.Tracking, error)
}

type RatesRequest struct {
	DestinationPostalCode string                  `json:"destination_postal_code"`
	Items                 []domain.SubmissionItem `json:"items"`
}

type Handler struct {
	api          AggregatorAPI
	orchestrator *Orchestrator
	couriers     []string
	logger       *slog.Logger
}

func NewHandler(api AggregatorAPI, orchestrator *Orchestrator, couriers []string, logger *slog.Logger) *Handler {
	return &Handler{
		api:          api,
		orchestrator: orchestrator,
		couriers:     couriers,
		logger:       logger,
	}
}

func (h *Handler) HandleRates(w http.ResponseWriter, r *http.Request) {
	var req RatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.DestinationPostalCode = strings.TrimSpace(req.DestinationPostalCode)
	if req.DestinationPostalCode == "" {
		h.writeError(w, http.StatusBadRequest, "destination_postal_code is required")
		return
	}
	if len(req.Items) == 0 {
		h.writeError(w, http.StatusBadRequest, "at least one item is required")
		return
	}

	parcel := h.orchestrator.BuildParcelFor(r.Context(), req.Items)

	rates, err := h.api.Rates(r.Context(), biteship.RatesRequest{
		OriginPostalCode:      h.orchestrator.Warehouse().PostalCode,
		DestinationPostalCode: req.DestinationPostalCode,
		Couriers:              strings.Join(h.couriers, ","),
		Items:                 parcel.Items,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to fetch shipping rates", "error", err,
			"destination_postal_code", req.DestinationPostalCode)
		h.writeAggregatorError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"weight":  parcel.Weight,
		"pricing": rates.Pricing,
	})
}

func (h *Handler) HandleTracking(w http.ResponseWriter, r *http.Request) {
	waybill := r.PathValue("waybill")
	courier := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("courier")))
	if waybill == "" || courier == "" {
		h.writeError(w, http.StatusBadRequest, "waybill and courier are required")
		return
	}

	tracking, err := h.api.Track(r.Context(), waybill, courier)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to track waybill", "error", err, "waybill", waybill, "courier", courier)
		h.writeAggregatorError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, tracking)
}

func (h *Handler) writeAggregatorError(w http.ResponseWriter, err error) {
	var apiErr *biteship.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		h.writeError(w, http.StatusNotFound, "waybill not found")
		return
	}
	h.writeError(w, http.StatusBadGateway, "shipping aggregator unavailable")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
