package notify

import (
	"context"
	"database/sql"
	"errors"
)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Email returns the account email of userID, or "" when the account is
// unknown or has none.
func (r *AccountRepository) Email(ctx context.Context, userID string) (string, error) {
	var email sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return email.String, nil
}
