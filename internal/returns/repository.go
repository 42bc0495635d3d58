package returns

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/joao-fontenele/storefront-payments/internal/domain"
)

type ReturnRepository struct {
	db *sql.DB
}

func NewReturnRepository(db *sql.DB) *ReturnRepository {
	return &ReturnRepository{db: db}
}

func (r *ReturnRepository) GetByID(ctx context.Context, id string) (*domain.Return, error) {
	var (
		ret      domain.Return
		userID   sql.NullString
		waybill  sql.NullString
		shipment []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, user_id, reason, status, return_waybill, return_shipment, created_at, updated_at
		FROM returns
		WHERE id::text = $1
	`, id).Scan(&ret.ID, &ret.OrderID, &userID, &ret.Reason, &ret.Status, &waybill, &shipment,
		&ret.CreatedAt, &ret.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	ret.UserID = userID.String
	if waybill.Valid {
		ret.ReturnWaybill = &waybill.String
	}
	if len(shipment) > 0 {
		ret.ReturnShipment = json.RawMessage(shipment)
	}

	return &ret, nil
}

// ClaimApproval moves a requested return to approving. It reports false when
// the return is not in the requested state anymore.
func (r *ReturnRepository) ClaimApproval(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, domain.ReturnStatusRequested, domain.ReturnStatusApproving)
}

func (r *ReturnRepository) ReleaseApproval(ctx context.Context, id string) error {
	_, err := r.transition(ctx, id, domain.ReturnStatusApproving, domain.ReturnStatusRequested)
	return err
}

func (r *ReturnRepository) MarkApproved(ctx context.Context, id, waybill string, shipment json.RawMessage) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE returns
		SET status = $1, return_waybill = NULLIF($2, ''), return_shipment = $3, updated_at = NOW()
		WHERE id::text = $4 AND status = $5
	`, domain.ReturnStatusApproved, waybill, []byte(shipment), id, domain.ReturnStatusApproving)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("return %s not in approving state: %w", id, sql.ErrNoRows)
	}
	return nil
}

func (r *ReturnRepository) transition(ctx context.Context, id string, from, to domain.ReturnStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE returns SET status = $1, updated_at = NOW()
		WHERE id::text = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}
