// Package payments receives payment gateway callbacks and drives a paid
// checkout through order creation, shipment and invoice.
package payments

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/storefront-payments/internal/apperr"
	"github.com/joao-fontenele/storefront-payments/internal/domain"
	"github.com/joao-fontenele/storefront-payments/internal/orders"
	"github.com/joao-fontenele/storefront-payments/internal/telemetry"
)

var tracer = otel.Tracer("payments")

type SignatureVerifier interface {
	Verify(body []byte, received string) (bool, error)
}

type SubmissionResolver interface {
	Resolve(ctx context.Context, reference, merchantRef string) (*domain.CheckoutSubmission, error)
}

type OrderMaterializer interface {
	Materialize(ctx context.Context, sub *domain.CheckoutSubmission, notice domain.PaymentNotice) (orders.Materialization, error)
}

type OrderLoader interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

type ShipmentOrchestrator interface {
	Ship(ctx context.Context, sub *domain.CheckoutSubmission, order *domain.Order) (*domain.ShipmentResult, error)
}

type InvoiceDispatcher interface {
	Dispatch(ctx context.Context, orderID string, sub *domain.CheckoutSubmission) (bool, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Outcome records what a callback delivery did.
type Outcome struct {
	SubmissionID string
	Reference    string
	Status       domain.SubmissionStatus
	OrderID      string
	OrderCreated bool
	Shipment     *domain.ShipmentResult
	InvoiceSent  bool
}

type Reconciler struct {
	verifier     SignatureVerifier
	resolver     SubmissionResolver
	materializer OrderMaterializer
	orders       OrderLoader
	shipper      ShipmentOrchestrator
	notifier     InvoiceDispatcher
	publisher    EventPublisher
	callbacks    metric.Int64Counter
	logger       *slog.Logger
}

type ReconcilerDeps struct {
	Verifier     SignatureVerifier
	Resolver     SubmissionResolver
	Materializer OrderMaterializer
	Orders       OrderLoader
	Shipper      ShipmentOrchestrator
	Notifier     InvoiceDispatcher
	// Publisher is optional; without it no order.paid events are emitted.
	Publisher EventPublisher
}

func NewReconciler(deps ReconcilerDeps, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		verifier:     deps.Verifier,
		resolver:     deps.Resolver,
		materializer: deps.Materializer,
		orders:       deps.Orders,
		shipper:      deps.Shipper,
		notifier:     deps.Notifier,
		publisher:    deps.Publisher,
		callbacks:    telemetry.NewCounter("payments", "payments.callbacks", "Payment callbacks by outcome"),
		logger:       logger,
	}
}

// Reconcile processes one callback delivery. body must be the raw request
// body. Errors carry an apperr kind; shipment and invoice failures are
// logged and never returned.
func (r *Reconciler) Reconcile(ctx context.Context, body []byte, sig string) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "payments.reconcile")
	defer span.End()

	outcome, err := r.reconcile(ctx, body, sig, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.callbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", apperr.KindOf(err).String())))
		return nil, err
	}

	r.callbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "acknowledged")))
	return outcome, nil
}

func (r *Reconciler) reconcile(ctx context.Context, body []byte, sig string, span trace.Span) (*Outcome, error) {
	ok, err := r.verifier.Verify(body, sig)
	if err != nil {
		return nil, err
	}
	if !ok {
		r.logger.WarnContext(ctx, "callback rejected, invalid signature")
		return nil, apperr.New(apperr.KindAuthentication, "invalid signature")
	}

	notice, err := ParseNotice(body)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("payment.reference", notice.Reference),
		attribute.String("payment.merchant_ref", notice.MerchantRef),
		attribute.String("payment.status", notice.Status),
	)

	sub, err := r.resolver.Resolve(ctx, notice.Reference, notice.MerchantRef)
	if err != nil {
		r.logger.WarnContext(ctx, "callback for unknown submission", "error", err,
			"reference", notice.Reference, "merchant_ref", notice.MerchantRef)
		return nil, err
	}

	m, err := r.materializer.Materialize(ctx, sub, notice)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to materialize payment", "error", err, "submission_id", sub.ID)
		return nil, err
	}

	outcome := &Outcome{
		SubmissionID: sub.ID,
		Reference:    orders.PaymentReference(sub, notice),
		Status:       m.Status,
		OrderID:      m.OrderID,
		OrderCreated: m.Created,
	}
	span.SetAttributes(attribute.String("submission.id", sub.ID), attribute.String("order.id", m.OrderID))

	if m.Stale {
		r.logger.WarnContext(ctx, "ignoring non-paid status for paid submission",
			"submission_id", sub.ID, "notice_status", notice.Status, "reference", notice.Reference)
		return outcome, nil
	}

	r.logger.InfoContext(ctx, "payment callback materialized",
		"submission_id", sub.ID, "status", m.Status, "order_id", m.OrderID, "created", m.Created)

	if m.OrderID == "" {
		return outcome, nil
	}

	if m.Created {
		r.publishPaid(ctx, sub, outcome)
	}

	if m.Status == domain.SubmissionStatusPaid {
		outcome.Shipment = r.ship(ctx, sub, m.OrderID)
	}

	sent, err := r.notifier.Dispatch(ctx, m.OrderID, sub)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to send invoice", "error", err, "order_id", m.OrderID)
	}
	outcome.InvoiceSent = sent

	return outcome, nil
}

func (r *Reconciler) ship(ctx context.Context, sub *domain.CheckoutSubmission, orderID string) *domain.ShipmentResult {
	order, err := r.orders.GetByID(ctx, orderID)
	if err != nil || order == nil {
		r.logger.ErrorContext(ctx, "failed to load order for shipment", "error", err, "order_id", orderID)
		return nil
	}

	result, err := r.shipper.Ship(ctx, sub, order)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to create shipment", "error", err, "order_id", orderID)
	}
	return result
}

func (r *Reconciler) publishPaid(ctx context.Context, sub *domain.CheckoutSubmission, outcome *Outcome) {
	if r.publisher == nil {
		return
	}

	event := domain.OrderPaidEvent{
		OrderID:          outcome.OrderID,
		SubmissionID:     sub.ID,
		PaymentReference: outcome.Reference,
		TotalAmount:      sub.Total,
		Timestamp:        time.Now().UTC(),
	}
	if err := r.publisher.Publish(ctx, outcome.OrderID, event); err != nil {
		r.logger.ErrorContext(ctx, "failed to publish order paid event", "error", err, "order_id", outcome.OrderID)
	}
}
