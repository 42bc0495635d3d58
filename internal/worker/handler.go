// Package worker re-runs the follow-up steps of a paid order from the
// order.paid stream: shipment creation and the invoice email.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/joao-fontenele/storefront-payments/internal/apperr"
	"github.com/joao-fontenele/storefront-payments/internal/domain"
	"github.com/joao-fontenele/storefront-payments/internal/messaging"
)

type SubmissionLoader interface {
	GetByID(ctx context.Context, id string) (*domain.CheckoutSubmission, error)
}

type OrderLoader interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

type Shipper interface {
	Ship(ctx context.Context, sub *domain.CheckoutSubmission, order *domain.Order) (*domain.ShipmentResult, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, orderID string, sub *domain.CheckoutSubmission) (bool, error)
}

type FollowUpHandler struct {
	submissions SubmissionLoader
	orders      OrderLoader
	shipper     Shipper
	notifier    Notifier
	logger      *slog.Logger
}

func NewFollowUpHandler(submissions SubmissionLoader, orders OrderLoader, shipper Shipper, notifier Notifier, logger *slog.Logger) *FollowUpHandler {
	return &FollowUpHandler{
		submissions: submissions,
		orders:      orders,
		shipper:     shipper,
		notifier:    notifier,
		logger:      logger,
	}
}

// Handle is a messaging.HandlerFunc. Both steps are guarded by their own
// claims, so running them after the callback already did is a no-op.
// Persistence failures are retried; external failures wait for the next
// callback delivery.
func (h *FollowUpHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderPaidEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order paid event: %w", err)
	}

	h.logger.InfoContext(ctx, "processing order paid event", "order_id", event.OrderID, "submission_id", event.SubmissionID)

	order, err := h.orders.GetByID(ctx, event.OrderID)
	if err != nil {
		return messaging.Retryable(fmt.Errorf("load order %s: %w", event.OrderID, err))
	}
	if order == nil {
		h.logger.WarnContext(ctx, "order of event not found", "order_id", event.OrderID)
		return nil
	}

	sub, err := h.submissions.GetByID(ctx, event.SubmissionID)
	if err != nil {
		return messaging.Retryable(fmt.Errorf("load submission %s: %w", event.SubmissionID, err))
	}
	if sub == nil {
		h.logger.WarnContext(ctx, "submission of event not found", "submission_id", event.SubmissionID)
		return nil
	}

	if _, err := h.shipper.Ship(ctx, sub, order); err != nil {
		if apperr.Is(err, apperr.KindPersistence) {
			return messaging.Retryable(err)
		}
		h.logger.ErrorContext(ctx, "follow-up shipment failed", "error", err, "order_id", order.ID)
	}

	if _, err := h.notifier.Dispatch(ctx, order.ID, sub); err != nil {
		if apperr.Is(err, apperr.KindPersistence) {
			return messaging.Retryable(err)
		}
		h.logger.ErrorContext(ctx, "follow-up invoice failed", "error", err, "order_id", order.ID)
	}

	h.logger.InfoContext(ctx, "order paid follow-up complete", "order_id", order.ID)
	return nil
}
