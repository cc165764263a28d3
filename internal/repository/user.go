package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"taskkash/internal/model"
)

const userColumns = `id, name, email, password_hash, role, status, task_points, tasks_completed,
	daily_streak, last_streak_date, last_daily_bonus_on, welcome_bonus_granted, last_login_at,
	created_at, updated_at`

// UserRepository handles user data persistence.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.Status,
		&u.TaskPoints,
		&u.TasksCompleted,
		&u.DailyStreak,
		&u.LastStreakDate,
		&u.LastDailyBonusOn,
		&u.WelcomeBonusGranted,
		&u.LastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func collectUsers(rows pgx.Rows) ([]*model.User, error) {
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// Create inserts a new account with a zero balance.
// Returns ErrDuplicateEmail if the email is taken.
func (r *UserRepository) Create(ctx context.Context, name, email, passwordHash, role string) (*model.User, error) {
	query := `
		INSERT INTO users (name, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRow(ctx, query, name, strings.ToLower(email), passwordHash, role))
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgUniqueViolation {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, ErrUserNotFound, "user")
	}
	return u, nil
}

// GetByIDForUpdate retrieves a user and locks the row until the surrounding
// transaction ends.
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`

	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, ErrUserNotFound, "user")
	}
	return u, nil
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	u, err := scanUser(r.db.QueryRow(ctx, query, strings.ToLower(email)))
	if err != nil {
		return nil, notFound(err, ErrUserNotFound, "user")
	}
	return u, nil
}

// AddPoints adds delta (possibly negative) to the balance.
// Returns ErrNegativeBalance if the result would be below zero.
func (r *UserRepository) AddPoints(ctx context.Context, id int64, delta int64) (*model.User, error) {
	query := `
		UPDATE users
		SET task_points = task_points + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRow(ctx, query, id, delta))
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgCheckViolation {
			return nil, ErrNegativeBalance
		}
		return nil, notFound(err, ErrUserNotFound, "user")
	}
	return u, nil
}

// IncrementTasksCompleted bumps the completed task counter.
func (r *UserRepository) IncrementTasksCompleted(ctx context.Context, id int64) error {
	const query = `UPDATE users SET tasks_completed = tasks_completed + 1, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment tasks completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// MarkWelcomeBonus flips welcome_bonus_granted. It reports false when the
// flag was already set, so only one caller ever wins the grant.
func (r *UserRepository) MarkWelcomeBonus(ctx context.Context, id int64) (bool, error) {
	const query = `
		UPDATE users
		SET welcome_bonus_granted = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT welcome_bonus_granted
	`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark welcome bonus: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkDailyBonus records day as the last daily bonus date. It reports false
// when the bonus was already recorded for that day.
func (r *UserRepository) MarkDailyBonus(ctx context.Context, id int64, day time.Time) (bool, error) {
	const query = `
		UPDATE users
		SET last_daily_bonus_on = $2::date, updated_at = NOW()
		WHERE id = $1 AND last_daily_bonus_on IS DISTINCT FROM $2::date
	`

	tag, err := r.db.Exec(ctx, query, id, day.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to mark daily bonus: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStreak stores the login streak and the day it was computed for.
func (r *UserRepository) UpdateStreak(ctx context.Context, id int64, streak int, day time.Time) error {
	const query = `
		UPDATE users
		SET daily_streak = $2, last_streak_date = $3::date, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.Exec(ctx, query, id, streak, day.UTC()); err != nil {
		return fmt.Errorf("failed to update streak: %w", err)
	}
	return nil
}

// TouchLogin records the last successful login time.
func (r *UserRepository) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	const query = `UPDATE users SET last_login_at = $2 WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// UpdateName changes the display name.
func (r *UserRepository) UpdateName(ctx context.Context, id int64, name string) (*model.User, error) {
	query := `
		UPDATE users SET name = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRow(ctx, query, id, name))
	if err != nil {
		return nil, notFound(err, ErrUserNotFound, "user")
	}
	return u, nil
}

// UpdatePassword replaces the password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetStatus changes the account status.
func (r *UserRepository) SetStatus(ctx context.Context, id int64, status string) (*model.User, error) {
	query := `
		UPDATE users SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRow(ctx, query, id, status))
	if err != nil {
		return nil, notFound(err, ErrUserNotFound, "user")
	}
	return u, nil
}

// List returns users newest first, optionally filtered by status and a
// name/email search term.
func (r *UserRepository) List(ctx context.Context, filter UserFilter) ([]*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, filter.Status, filter.Search, PageLimit(filter.Limit), PageOffset(filter.Offset))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return collectUsers(rows)
}

// Count returns the number of accounts.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// TotalPoints returns the sum of all balances.
func (r *UserRepository) TotalPoints(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(task_points), 0)::bigint FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to sum points: %w", err)
	}
	return n, nil
}

// TopByPoints retrieves the active users with the highest balance.
func (r *UserRepository) TopByPoints(ctx context.Context, limit int) ([]*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE status = 'active'
		ORDER BY task_points DESC, id ASC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, PageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	return collectUsers(rows)
}

// TopByTasksCompleted retrieves the active users with the most approved tasks.
func (r *UserRepository) TopByTasksCompleted(ctx context.Context, limit int) ([]*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE status = 'active'
		ORDER BY tasks_completed DESC, id ASC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, PageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	return collectUsers(rows)
}
