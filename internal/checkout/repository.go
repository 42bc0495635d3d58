package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joao-fontenele/storefront-payments/internal/domain"
)

type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const selectSubmission = `
	SELECT id, COALESCE(user_id, ''), total, items, shipping_method, shipping_address,
	       status, payment_reference, payment_details, payment_expired_at
	FROM checkout_submissions
`

func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*domain.CheckoutSubmission, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectSubmission+`WHERE id = $1`, id))
}

func (r *SubmissionRepository) FindByPaymentReference(ctx context.Context, reference string) (*domain.CheckoutSubmission, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectSubmission+`
		WHERE payment_reference = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`, reference))
}

// UpdateStatus sets the status of a submission and returns the status it
// ends up with. Paid is terminal: a later non-paid status leaves it paid.
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, id string, status domain.SubmissionStatus) (domain.SubmissionStatus, error) {
	var stored domain.SubmissionStatus
	err := r.db.QueryRowContext(ctx, `
		UPDATE checkout_submissions SET status = $1, updated_at = NOW()
		WHERE id = $2 AND (status <> $3 OR $1 = $3)
		RETURNING status
	`, status, id, domain.SubmissionStatusPaid).Scan(&stored)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	err = r.db.QueryRowContext(ctx, `SELECT status FROM checkout_submissions WHERE id = $1`, id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("submission %s: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return "", err
	}
	return stored, nil
}

// RecordTransaction stores the gateway transaction created for a submission
// and marks it submitted.
func (r *SubmissionRepository) RecordTransaction(ctx context.Context, id, reference string, details json.RawMessage, expiredAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE checkout_submissions
		SET payment_reference = $1, payment_details = $2, payment_expired_at = $3,
		    status = $4, updated_at = NOW()
		WHERE id = $5
	`, reference, []byte(details), expiredAt, domain.SubmissionStatusSubmitted, id)
	return err
}

func (r *SubmissionRepository) scanOne(row *sql.Row) (*domain.CheckoutSubmission, error) {
	var (
		sub       domain.CheckoutSubmission
		items     []byte
		address   []byte
		reference sql.NullString
		details   []byte
		expiredAt sql.NullTime
	)

	err := row.Scan(&sub.ID, &sub.UserID, &sub.Total, &items, &sub.ShippingMethod, &address,
		&sub.Status, &reference, &details, &expiredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if len(items) > 0 {
		if err := json.Unmarshal(items, &sub.Items); err != nil {
			return nil, fmt.Errorf("decode items of submission %s: %w", sub.ID, err)
		}
	}
	if len(address) > 0 && string(address) != "null" {
		sub.ShippingAddress = &domain.ShippingAddress{}
		if err := json.Unmarshal(address, sub.ShippingAddress); err != nil {
			return nil, fmt.Errorf("decode address of submission %s: %w", sub.ID, err)
		}
	}
	if reference.Valid {
		sub.PaymentReference = &reference.String
	}
	if len(details) > 0 {
		sub.PaymentDetails = json.RawMessage(details)
	}
	if expiredAt.Valid {
		t := expiredAt.Time
		sub.PaymentExpiredAt = &t
	}

	return &sub, nil
}
