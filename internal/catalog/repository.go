package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/joao-fontenele/storefront-payments/internal/domain"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) GetDimensions(ctx context.Context, productID string) (*domain.ProductDimensions, error) {
	dims := &domain.ProductDimensions{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, weight_grams, length_cm, width_cm, height_cm
		FROM products
		WHERE id = $1
	`, productID).Scan(&dims.ProductID, &dims.Weight, &dims.Length, &dims.Width, &dims.Height)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return dims, nil
}

// Dimensions returns the known dimensions of the given products keyed by id.
// Unknown products are absent from the map.
func (r *ProductRepository) Dimensions(ctx context.Context, productIDs []string) (map[string]domain.ProductDimensions, error) {
	out := make(map[string]domain.ProductDimensions, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, weight_grams, length_cm, width_cm, height_cm
		FROM products
		WHERE id = ANY($1)
	`, pq.Array(productIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var dims domain.ProductDimensions
		if err := rows.Scan(&dims.ProductID, &dims.Weight, &dims.Length, &dims.Width, &dims.Height); err != nil {
			return nil, err
		}
		out[dims.ProductID] = dims
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
