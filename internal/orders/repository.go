package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/storefront-payments/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// shipNowCondition matches orders that have no usable waybill yet and no
// recorded aggregator shipment. The aggregator may accept a shipment without
// returning a waybill, so the recorded biteship object alone blocks a new one.
const shipNowCondition = `(shipping_resi IS NULL OR shipping_resi = '' OR shipping_resi = $2 OR char_length(shipping_resi) < 6)
		  AND jsonb_typeof(shipping_address_json->'biteship') IS DISTINCT FROM 'object'`

// CreateFromSubmission inserts order and items in one transaction. When an
// order with the same payment reference exists, nothing is written, the
// existing id is copied into order.ID and created is false.
func (r *OrderRepository) CreateFromSubmission(ctx context.Context, order *domain.Order) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return false, fmt.Errorf("encode shipping address: %w", err)
	}
	details := []byte(order.PaymentDetails)
	if len(details) == 0 {
		details = []byte("{}")
	}

	id := uuid.New().String()
	var insertedID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (id, user_id, order_number, payment_reference, total_amount, status,
		                    payment_method, shipping_address_json, shipping_status, shipping_resi,
		                    payment_details, payment_expired_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, $10, $11, $12, $12)
		ON CONFLICT (payment_reference) DO NOTHING
		RETURNING id
	`, id, order.UserID, order.OrderNumber, order.PaymentReference, order.TotalAmount, order.Status,
		order.PaymentMethod, address, order.ShippingStatus, details, order.PaymentExpiredAt, order.CreatedAt,
	).Scan(&insertedID)

	if errors.Is(err, sql.ErrNoRows) {
		if err := tx.QueryRowContext(ctx, `
			SELECT id FROM orders WHERE payment_reference = $1
		`, order.PaymentReference).Scan(&order.ID); err != nil {
			return false, fmt.Errorf("load existing order: %w", err)
		}
		return false, tx.Commit()
	}
	if err != nil {
		return false, err
	}

	order.ID = insertedID

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, quantity, price, size)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New().String(), order.ID, item.ProductID, item.ProductName, item.Quantity, item.Price, item.Size)
		if err != nil {
			return false, fmt.Errorf("insert order item %s: %w", item.ProductID, err)
		}
	}

	return true, tx.Commit()
}

const selectOrder = `
	SELECT id, COALESCE(user_id, ''), order_number, payment_reference, total_amount, status,
	       payment_method, shipping_address_json, shipping_status, shipping_resi,
	       payment_details, payment_expired_at, created_at
	FROM orders
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order     domain.Order
		address   []byte
		resi      sql.NullString
		details   []byte
		expiredAt sql.NullTime
	)

	if err := row.Scan(&order.ID, &order.UserID, &order.OrderNumber, &order.PaymentReference,
		&order.TotalAmount, &order.Status, &order.PaymentMethod, &address, &order.ShippingStatus,
		&resi, &details, &expiredAt, &order.CreatedAt); err != nil {
		return nil, err
	}

	if len(address) > 0 {
		if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
			return nil, fmt.Errorf("decode shipping address of order %s: %w", order.ID, err)
		}
	}
	if resi.Valid {
		order.ShippingResi = &resi.String
	}
	order.PaymentDetails = json.RawMessage(details)
	if expiredAt.Valid {
		t := expiredAt.Time
		order.PaymentExpiredAt = &t
	}
	order.Items = []domain.OrderItem{}

	return &order, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, selectOrder+`WHERE id::text = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, price, size
		FROM order_items
		WHERE order_id::text = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.Price, &item.Size); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, selectOrder+`
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, quantity, price, size
		FROM order_items
		WHERE order_id::text = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.Price, &item.Size); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// ClaimShipment takes the shipment lease for an order. It succeeds only when
// the order still has no usable waybill and no other caller holds a lease
// younger than lease, so concurrent deliveries cannot both create a shipment.
func (r *OrderRepository) ClaimShipment(ctx context.Context, id string, lease time.Duration) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET shipment_claimed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND `+shipNowCondition+`
		  AND (shipment_claimed_at IS NULL OR shipment_claimed_at < NOW() - make_interval(secs => $3))
	`, id, domain.ShippingResiPending, lease.Seconds())
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *OrderRepository) ReleaseShipment(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders SET shipment_claimed_at = NULL WHERE id = $1
	`, id)
	return err
}

// RecordShipment stores the waybill (when non-empty) and replaces the
// biteship key of the address document, keeping the base address.
func (r *OrderRepository) RecordShipment(ctx context.Context, id, waybill string, meta *domain.ShipmentMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode shipment meta: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE orders
		SET shipping_resi = COALESCE(NULLIF($2, ''), shipping_resi),
		    shipping_address_json = jsonb_set(COALESCE(shipping_address_json, '{}'::jsonb), '{biteship}', $3::jsonb, true),
		    shipment_claimed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, id, waybill, data)
	return err
}

// ClaimInvoice takes the invoice lease. It fails once invoice_sent_at is set.
func (r *OrderRepository) ClaimInvoice(ctx context.Context, id string, lease time.Duration) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET invoice_claimed_at = NOW()
		WHERE id = $1
		  AND NOT (COALESCE(payment_details, '{}'::jsonb) ? 'invoice_sent_at')
		  AND (invoice_claimed_at IS NULL OR invoice_claimed_at < NOW() - make_interval(secs => $2))
	`, id, lease.Seconds())
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *OrderRepository) MarkInvoiceSent(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_details = COALESCE(payment_details, '{}'::jsonb) || jsonb_build_object('invoice_sent_at', $2::text),
		    invoice_claimed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, id, at.UTC().Format(time.RFC3339))
	return err
}

func (r *OrderRepository) ReleaseInvoice(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders SET invoice_claimed_at = NULL WHERE id = $1
	`, id)
	return err
}

func affectedOne(result sql.Result) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}
