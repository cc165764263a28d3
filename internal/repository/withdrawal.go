package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"taskkash/internal/model"
)

const withdrawalColumns = `id, user_id, amount, converted_amount::text, type, status, bank_name,
	account_name, account_number, network, wallet_address, reviewed_by, reviewed_at,
	created_at, updated_at`

// WithdrawalRepository handles payout request persistence.
type WithdrawalRepository struct {
	db DBTX
}

// NewWithdrawalRepository creates a new WithdrawalRepository instance.
func NewWithdrawalRepository(db DBTX) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func scanWithdrawal(row pgx.Row) (*model.Withdrawal, error) {
	var w model.Withdrawal
	var converted string
	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.Amount,
		&converted,
		&w.Type,
		&w.Status,
		&w.BankName,
		&w.AccountName,
		&w.AccountNumber,
		&w.Network,
		&w.WalletAddress,
		&w.ReviewedBy,
		&w.ReviewedAt,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.ConvertedAmount, err = decimal.NewFromString(converted)
	if err != nil {
		return nil, fmt.Errorf("invalid converted amount %q: %w", converted, err)
	}
	return &w, nil
}

// Create inserts a pending withdrawal.
func (r *WithdrawalRepository) Create(ctx context.Context, w *model.Withdrawal) (*model.Withdrawal, error) {
	query := `
		INSERT INTO withdrawals (user_id, amount, converted_amount, type, status, bank_name,
			account_name, account_number, network, wallet_address, created_at, updated_at)
		VALUES ($1, $2, $3::text::numeric, $4, 'pending', $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING ` + withdrawalColumns

	created, err := scanWithdrawal(r.db.QueryRow(ctx, query,
		w.UserID, w.Amount, w.ConvertedAmount.String(), w.Type, w.BankName,
		w.AccountName, w.AccountNumber, w.Network, w.WalletAddress,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create withdrawal: %w", err)
	}
	return created, nil
}

// GetByID retrieves a withdrawal by ID.
func (r *WithdrawalRepository) GetByID(ctx context.Context, id int64) (*model.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`

	w, err := scanWithdrawal(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, ErrWithdrawalNotFound, "withdrawal")
	}
	return w, nil
}

// GetByIDForUpdate retrieves a withdrawal and locks the row.
func (r *WithdrawalRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1 FOR UPDATE`

	w, err := scanWithdrawal(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, ErrWithdrawalNotFound, "withdrawal")
	}
	return w, nil
}

// MarkReviewed moves a pending withdrawal to its final status.
// Returns ErrNotPending if it was already processed.
func (r *WithdrawalRepository) MarkReviewed(ctx context.Context, id int64, status string, reviewerID int64, at time.Time) (*model.Withdrawal, error) {
	query := `
		UPDATE withdrawals
		SET status = $2, reviewed_by = $3, reviewed_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + withdrawalColumns

	w, err := scanWithdrawal(r.db.QueryRow(ctx, query, id, status, reviewerID, at))
	if err != nil {
		return nil, notFound(err, ErrNotPending, "withdrawal")
	}
	return w, nil
}

// List returns withdrawals newest first.
func (r *WithdrawalRepository) List(ctx context.Context, filter WithdrawalFilter) ([]*model.Withdrawal, error) {
	query := `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE ($1 = '' OR status = $1) AND ($2::bigint = 0 OR user_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, filter.Status, filter.UserID, PageLimit(filter.Limit), PageOffset(filter.Offset))
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	defer rows.Close()

	var out []*model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawals: %w", err)
	}
	return out, nil
}

// CountByStatus counts withdrawals in one status.
func (r *WithdrawalRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM withdrawals WHERE status = $1`, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count withdrawals: %w", err)
	}
	return n, nil
}
