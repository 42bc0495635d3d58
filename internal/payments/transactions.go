package payments

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/joao-fontenele/storefront-payments/internal/apperr"
	"github.com/joao-fontenele/storefront-payments/internal/domain"
	"github.com/joao-fontenele/storefront-payments/internal/tripay"
)

type Gateway interface {
	CreateTransaction(ctx context.Context, in tripay.TransactionInput) (*tripay.Transaction, error)
}

type SubmissionStore interface {
	GetByID(ctx context.Context, id string) (*domain.CheckoutSubmission, error)
	RecordTransaction(ctx context.Context, id, reference string, details json.RawMessage, expiredAt time.Time) error
}

type TransactionResult struct {
	SubmissionID string     `json:"submission_id"`
	Reference    string     `json:"reference"`
	CheckoutURL  string     `json:"checkout_url"`
	ExpiredAt    *time.Time `json:"expired_at,omitempty"`
}

// TransactionService opens gateway transactions for checkout submissions.
type TransactionService struct {
	gateway     Gateway
	submissions SubmissionStore
	logger      *slog.Logger
}

func NewTransactionService(gateway Gateway, submissions SubmissionStore, logger *slog.Logger) *TransactionService {
	return &TransactionService{
		gateway:     gateway,
		submissions: submissions,
		logger:      logger,
	}
}

// Create opens a transaction for the submission. A submission that already
// has a gateway reference gets the stored transaction back.
func (s *TransactionService) Create(ctx context.Context, submissionID, method string) (*TransactionResult, error) {
	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "load submission", err)
	}
	if sub == nil {
		return nil, apperr.New(apperr.KindNotFound, "checkout submission not found")
	}

	if sub.PaymentReference != nil && *sub.PaymentReference != "" {
		return &TransactionResult{
			SubmissionID: sub.ID,
			Reference:    *sub.PaymentReference,
			CheckoutURL:  storedCheckoutURL(sub.PaymentDetails),
			ExpiredAt:    sub.PaymentExpiredAt,
		}, nil
	}
	if sub.Status == domain.SubmissionStatusPaid {
		return nil, apperr.New(apperr.KindConflict, "submission is already paid")
	}
	if len(sub.Items) == 0 {
		return nil, apperr.New(apperr.KindBadRequest, "submission has no items")
	}

	in := tripay.TransactionInput{
		Method:      method,
		MerchantRef: sub.ID,
		Amount:      sub.Total,
	}
	if addr := sub.ShippingAddress; addr != nil {
		in.CustomerName = addr.Name
		in.CustomerEmail = addr.Email
		in.CustomerPhone = addr.Phone
	}
	for _, item := range sub.Items {
		in.Items = append(in.Items, tripay.OrderItem{
			SKU:      item.ProductID,
			Name:     item.Name,
			Price:    item.UnitPrice,
			Quantity: max(1, item.Quantity),
		})
	}

	tx, err := s.gateway.CreateTransaction(ctx, in)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalService, "create gateway transaction", err)
	}

	if err := s.submissions.RecordTransaction(ctx, sub.ID, tx.Reference, tx.Raw, tx.ExpiredAt); err != nil {
		s.logger.ErrorContext(ctx, "transaction created but not recorded",
			"error", err, "submission_id", sub.ID, "reference", tx.Reference)
		return nil, apperr.Wrap(apperr.KindPersistence, "record transaction", err)
	}

	s.logger.InfoContext(ctx, "transaction created", "submission_id", sub.ID, "reference", tx.Reference, "method", method)

	expiredAt := tx.ExpiredAt
	return &TransactionResult{
		SubmissionID: sub.ID,
		Reference:    tx.Reference,
		CheckoutURL:  tx.CheckoutURL,
		ExpiredAt:    &expiredAt,
	}, nil
}

func storedCheckoutURL(details json.RawMessage) string {
	var stored struct {
		Data struct {
			CheckoutURL string `json:"checkout_url"`
			PayURL      string `json:"pay_url"`
			PaymentURL  string `json:"payment_url"`
		} `json:"data"`
	}
	if len(details) == 0 || json.Unmarshal(details, &stored) != nil {
		return ""
	}
	for _, u := range []string{stored.Data.CheckoutURL, stored.Data.PayURL, stored.Data.PaymentURL} {
		if u != "" {
			return u
		}
	}
	return ""
}
