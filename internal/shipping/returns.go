package shipping

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/storefront-payments/internal/apperr"
	"github.com/joao-fontenele/storefront-payments/internal/domain"
)

type ReturnStore interface {
	GetByID(ctx context.Context, id string) (*domain.Return, error)
	ClaimApproval(ctx context.Context, id string) (bool, error)
	ReleaseApproval(ctx context.Context, id string) error
	MarkApproved(ctx context.Context, id, waybill string, shipment json.RawMessage) error
}

type OrderLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

// ReturnService creates the reverse shipment for an approved return.
type ReturnService struct {
	orchestrator *Orchestrator
	returns      ReturnStore
	orders       OrderLookup
	logger       *slog.Logger
}

func NewReturnService(orchestrator *Orchestrator, returns ReturnStore, orders OrderLookup, logger *slog.Logger) *ReturnService {
	return &ReturnService{
		orchestrator: orchestrator,
		returns:      returns,
		orders:       orders,
		logger:       logger,
	}
}

// Approve ships the returned goods from the customer to the warehouse and
// marks the return approved. Approving an approved return returns it as is.
func (s *ReturnService) Approve(ctx context.Context, id string) (*domain.Return, error) {
	ctx, span := tracer.Start(ctx, "shipping.approve_return",
		trace.WithAttributes(attribute.String("return.id", id)),
	)
	defer span.End()

	ret, err := s.returns.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "load return", err)
	}
	if ret == nil {
		return nil, apperr.New(apperr.KindNotFound, "return not found")
	}

	switch ret.Status {
	case domain.ReturnStatusApproved:
		return ret, nil
	case domain.ReturnStatusRejected:
		return nil, apperr.New(apperr.KindConflict, "return was rejected")
	case domain.ReturnStatusApproving:
		return nil, apperr.New(apperr.KindConflict, "return approval in progress")
	}

	order, err := s.orders.GetByID(ctx, ret.OrderID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "load order", err)
	}
	if order == nil {
		return nil, apperr.New(apperr.KindNotFound, "order of return not found")
	}

	addr := order.ShippingAddress
	if strings.TrimSpace(addr.Street) == "" || strings.TrimSpace(addr.PostalCode) == "" {
		return nil, apperr.New(apperr.KindBadRequest, "order has no complete customer address")
	}

	claimed, err := s.returns.ClaimApproval(ctx, ret.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "claim return", err)
	}
	if !claimed {
		return nil, apperr.New(apperr.KindConflict, "return is no longer awaiting approval")
	}

	parcel := s.orchestrator.BuildParcelFor(ctx, ItemsFromOrder(order.Items))
	req := s.orchestrator.ReturnRequest(order, parcel, ret.ID)

	result, err := s.orchestrator.CreateShipment(ctx, req)
	if err == nil && !result.Success {
		err = apperr.New(apperr.KindExternalService, "return shipment rejected: "+result.Message)
	}
	if err != nil {
		span.RecordError(err)
		if releaseErr := s.returns.ReleaseApproval(ctx, ret.ID); releaseErr != nil {
			s.logger.ErrorContext(ctx, "failed to release return claim", "error", releaseErr, "return_id", ret.ID)
		}
		return nil, err
	}

	shipment, err := json.Marshal(result.Meta())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "encode return shipment", err)
	}

	if err := s.markApproved(ctx, ret.ID, result.Waybill, shipment); err != nil {
		// The return stays approving and blocks another shipment until it is
		// reconciled by hand from the logged shipment.
		s.logger.ErrorContext(ctx, "return shipment created but not recorded",
			"error", err, "return_id", ret.ID, "waybill", result.Waybill,
			"biteship_order_id", result.OrderID, "shipment", string(shipment), "manual_reconciliation", true)
		span.RecordError(err)
		return nil, apperr.Wrap(apperr.KindPersistence, "record return shipment", err)
	}

	s.logger.InfoContext(ctx, "return approved", "return_id", ret.ID, "order_id", order.ID, "waybill", result.Waybill)

	ret.Status = domain.ReturnStatusApproved
	if result.Waybill != "" {
		ret.ReturnWaybill = &result.Waybill
	}
	ret.ReturnShipment = shipment
	return ret, nil
}

// markApproved records the approval, retrying once on a context that outlives
// the caller since the shipment already exists.
func (s *ReturnService) markApproved(ctx context.Context, id, waybill string, shipment json.RawMessage) error {
	err := s.returns.MarkApproved(ctx, id, waybill, shipment)
	if err == nil {
		return nil
	}
	s.logger.WarnContext(ctx, "retrying return approval record", "error", err, "return_id", id)
	return s.returns.MarkApproved(context.WithoutCancel(ctx), id, waybill, shipment)
}
