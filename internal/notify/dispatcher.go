// Package notify sends the invoice email of a paid order exactly once.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/storefront-payments/internal/apperr"
	"github.com/joao-fontenele/storefront-payments/internal/domain"
	"github.com/joao-fontenele/storefront-payments/internal/telemetry"
)

var tracer = otel.Tracer("notify")

const DefaultClaimLease = 2 * time.Minute

type Sender interface {
	Send(ctx context.Context, email Email) error
}

type InvoiceStore interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ClaimInvoice(ctx context.Context, id string, lease time.Duration) (bool, error)
	MarkInvoiceSent(ctx context.Context, id string, at time.Time) error
	ReleaseInvoice(ctx context.Context, id string) error
}

type AccountLookup interface {
	Email(ctx context.Context, userID string) (string, error)
}

type Dispatcher struct {
	sender     Sender
	orders     InvoiceStore
	accounts   AccountLookup
	storeName  string
	claimLease time.Duration
	now        func() time.Time
	invoices   metric.Int64Counter
	logger     *slog.Logger
}

func NewDispatcher(sender Sender, orders InvoiceStore, accounts AccountLookup, storeName string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:     sender,
		orders:     orders,
		accounts:   accounts,
		storeName:  storeName,
		claimLease: DefaultClaimLease,
		now:        time.Now,
		invoices:   telemetry.NewCounter("notify", "notify.invoices", "Invoice emails by result"),
		logger:     logger,
	}
}

// Dispatch sends the invoice of orderID unless it was already sent or no
// recipient is known. sent reports whether an email went out in this call.
func (d *Dispatcher) Dispatch(ctx context.Context, orderID string, sub *domain.CheckoutSubmission) (sent bool, err error) {
	ctx, span := tracer.Start(ctx, "notify.dispatch",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer span.End()

	order, err := d.orders.GetByID(ctx, orderID)
	if err != nil {
		return false, apperr.Wrap(apperr.KindPersistence, "load order", err)
	}
	if order == nil {
		return false, apperr.New(apperr.KindNotFound, "order not found")
	}

	if InvoiceSent(order.PaymentDetails) {
		d.record(ctx, "already_sent")
		return false, nil
	}

	recipient := d.recipient(ctx, order, sub)
	if recipient == "" {
		d.record(ctx, "no_recipient")
		d.logger.InfoContext(ctx, "invoice skipped, no recipient", "order_id", orderID)
		return false, nil
	}

	claimed, err := d.orders.ClaimInvoice(ctx, orderID, d.claimLease)
	if err != nil {
		return false, apperr.Wrap(apperr.KindPersistence, "claim invoice", err)
	}
	if !claimed {
		d.record(ctx, "in_progress")
		return false, nil
	}

	html, err := renderInvoice(newInvoiceData(d.storeName, order, sub))
	if err == nil {
		err = d.sender.Send(ctx, Email{
			To:      []string{recipient},
			Subject: invoiceSubject(d.storeName, order.OrderNumber),
			HTML:    html,
		})
	}
	if err != nil {
		d.record(ctx, "failed")
		span.RecordError(err)
		if releaseErr := d.orders.ReleaseInvoice(ctx, orderID); releaseErr != nil {
			d.logger.ErrorContext(ctx, "failed to release invoice claim", "error", releaseErr, "order_id", orderID)
		}
		return false, apperr.Wrap(apperr.KindExternalService, "send invoice", err)
	}

	d.record(ctx, "sent")
	if err := d.markSent(ctx, orderID); err != nil {
		// The claim is left to expire, after which a redelivery sends the
		// invoice again.
		d.logger.ErrorContext(ctx, "invoice sent but not marked, it may be resent once the claim expires",
			"error", err, "order_id", orderID, "resend_after", d.claimLease)
		span.RecordError(err)
		return true, apperr.Wrap(apperr.KindPersistence, "mark invoice sent", err)
	}

	d.logger.InfoContext(ctx, "invoice sent", "order_id", orderID, "order_number", order.OrderNumber)
	return true, nil
}

// markSent records the send, retrying once on a context that outlives the
// caller since the email is already out.
func (d *Dispatcher) markSent(ctx context.Context, orderID string) error {
	at := d.now()
	err := d.orders.MarkInvoiceSent(ctx, orderID, at)
	if err == nil {
		return nil
	}
	d.logger.WarnContext(ctx, "retrying invoice sent marker", "error", err, "order_id", orderID)
	return d.orders.MarkInvoiceSent(context.WithoutCancel(ctx), orderID, at)
}

func (d *Dispatcher) recipient(ctx context.Context, order *domain.Order, sub *domain.CheckoutSubmission) string {
	userID := order.UserID
	if userID == "" && sub != nil {
		userID = sub.UserID
	}
	if userID != "" && d.accounts != nil {
		email, err := d.accounts.Email(ctx, userID)
		if err != nil {
			d.logger.WarnContext(ctx, "failed to load account email", "error", err, "user_id", userID)
		} else if email != "" {
			return email
		}
	}

	if sub != nil && sub.ShippingAddress != nil && sub.ShippingAddress.Email != "" {
		return sub.ShippingAddress.Email
	}
	return order.ShippingAddress.Email
}

func (d *Dispatcher) record(ctx context.Context, result string) {
	d.invoices.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// InvoiceSent reports whether payment details carry the invoice_sent_at marker.
func InvoiceSent(details json.RawMessage) bool {
	if len(details) == 0 {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(details, &fields); err != nil {
		return false
	}
	_, ok := fields["invoice_sent_at"]
	return ok
}
