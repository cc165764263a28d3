package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"taskkash/internal/model"
)

// TransactionRepository handles ledger persistence.
type TransactionRepository struct {
	db DBTX
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var tx model.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Amount,
		&tx.Type,
		&tx.Description,
		&tx.Reference,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Create appends a ledger entry.
func (r *TransactionRepository) Create(ctx context.Context, tx *model.Transaction) (*model.Transaction, error) {
	const query = `
		INSERT INTO transactions (user_id, amount, type, description, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, user_id, amount, type, description, reference, created_at
	`

	created, err := scanTransaction(r.db.QueryRow(ctx, query, tx.UserID, tx.Amount, tx.Type, tx.Description, tx.Reference))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return created, nil
}

// ListByUser retrieves a user's ledger, newest first.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*model.Transaction, error) {
	const query = `
		SELECT id, user_id, amount, type, description, reference, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, userID, PageLimit(limit), PageOffset(offset))
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// SumByUser returns the sum of a user's ledger entries.
func (r *TransactionRepository) SumByUser(ctx context.Context, userID int64) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0)::bigint FROM transactions WHERE user_id = $1`

	var sum int64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}

// CountByUserAndType counts a user's ledger entries of one type.
func (r *TransactionRepository) CountByUserAndType(ctx context.Context, userID int64, txType string) (int64, error) {
	const query = `SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND type = $2`

	var n int64
	if err := r.db.QueryRow(ctx, query, userID, txType).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// DailyEarners retrieves the users with the most task rewards on the given UTC day.
func (r *TransactionRepository) DailyEarners(ctx context.Context, day time.Time, limit int) ([]*model.DailyRank, error) {
	const query = `
		SELECT e.user_id, u.name, e.earned
		FROM daily_task_earnings e
		JOIN users u ON u.id = e.user_id
		WHERE e.earned_on = $1::date
		ORDER BY e.earned DESC, e.user_id ASC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, day.UTC(), PageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get daily earners: %w", err)
	}
	defer rows.Close()

	var ranks []*model.DailyRank
	for rows.Next() {
		var rank model.DailyRank
		if err := rows.Scan(&rank.UserID, &rank.Name, &rank.Earned); err != nil {
			return nil, fmt.Errorf("failed to scan daily rank: %w", err)
		}
		ranks = append(ranks, &rank)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily ranks: %w", err)
	}
	return ranks, nil
}
