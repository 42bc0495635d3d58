package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joao-fontenele/storefront-payments/internal/apperr"
	"github.com/joao-fontenele/storefront-payments/internal/domain"
)

type OrderCreator interface {
	CreateFromSubmission(ctx context.Context, order *domain.Order) (bool, error)
}

// SubmissionStatusUpdater stores a submission status and reports the status
// actually kept, which stays paid once a submission has been paid.
type SubmissionStatusUpdater interface {
	UpdateStatus(ctx context.Context, id string, status domain.SubmissionStatus) (domain.SubmissionStatus, error)
}

// Materialization describes what Materialize did. OrderID is empty unless the
// notice paid the submission. Stale is set when a non-paid notice arrived for
// a submission that was already paid.
type Materialization struct {
	Status  domain.SubmissionStatus
	OrderID string
	Created bool
	Stale   bool
}

// Materializer turns a paid checkout submission into an order, once per
// payment reference.
type Materializer struct {
	submissions SubmissionStatusUpdater
	orders      OrderCreator
	now         func() time.Time
}

func NewMaterializer(submissions SubmissionStatusUpdater, orders OrderCreator) *Materializer {
	return &Materializer{
		submissions: submissions,
		orders:      orders,
		now:         time.Now,
	}
}

// NormalizeStatus maps gateway statuses onto submission statuses. "paid" and
// "success" become paid; anything else is kept, lower-cased.
func NormalizeStatus(status string) domain.SubmissionStatus {
	s := strings.ToLower(strings.TrimSpace(status))
	switch s {
	case "paid", "success":
		return domain.SubmissionStatusPaid
	}
	return domain.SubmissionStatus(s)
}

// PaymentReference picks the key that identifies the order of a payment:
// the gateway reference, else the one stored at checkout, else the
// submission id.
func PaymentReference(sub *domain.CheckoutSubmission, notice domain.PaymentNotice) string {
	if notice.Reference != "" {
		return notice.Reference
	}
	if sub.PaymentReference != nil && *sub.PaymentReference != "" {
		return *sub.PaymentReference
	}
	return sub.ID
}

func (m *Materializer) Materialize(ctx context.Context, sub *domain.CheckoutSubmission, notice domain.PaymentNotice) (Materialization, error) {
	status := NormalizeStatus(notice.Status)
	result := Materialization{Status: status}

	stored, err := m.submissions.UpdateStatus(ctx, sub.ID, status)
	if err != nil {
		return result, apperr.Wrap(apperr.KindPersistence, "update submission status", err)
	}

	if status != domain.SubmissionStatusPaid {
		if stored == domain.SubmissionStatusPaid {
			result.Status = stored
			result.Stale = true
		}
		return result, nil
	}

	order := m.buildOrder(sub, notice)
	created, err := m.orders.CreateFromSubmission(ctx, order)
	if err != nil {
		return result, apperr.Wrap(apperr.KindPersistence, "create order", err)
	}

	result.OrderID = order.ID
	result.Created = created
	return result, nil
}

func (m *Materializer) buildOrder(sub *domain.CheckoutSubmission, notice domain.PaymentNotice) *domain.Order {
	now := m.now().UTC()

	order := &domain.Order{
		UserID:           sub.UserID,
		PaymentReference: PaymentReference(sub, notice),
		TotalAmount:      sub.Total,
		Status:           domain.OrderStatusPaid,
		PaymentMethod:    notice.PaymentMethod,
		ShippingStatus:   domain.ShippingStatusPacking,
		PaymentDetails:   notice.Payload,
		PaymentExpiredAt: sub.PaymentExpiredAt,
		CreatedAt:        now,
	}
	order.OrderNumber = orderNumber(now, sub.ID)

	if sub.ShippingAddress != nil {
		order.ShippingAddress = *sub.ShippingAddress
		order.ShippingAddress.Biteship = nil
	}

	order.Items = make([]domain.OrderItem, 0, len(sub.Items))
	for _, item := range sub.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.Name,
			Quantity:    item.Quantity,
			Price:       item.UnitPrice,
			Size:        item.Size,
		})
	}

	return order
}

func orderNumber(now time.Time, submissionID string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(submissionID, "-", ""))
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}
