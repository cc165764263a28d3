// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskkash/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound            = errors.New("user not found")
	ErrTaskNotFound            = errors.New("task not found")
	ErrSubmissionNotFound      = errors.New("submission not found")
	ErrWithdrawalNotFound      = errors.New("withdrawal not found")
	ErrDuplicateEmail          = errors.New("email already registered")
	ErrPendingSubmissionExists = errors.New("pending submission already exists")
	ErrNegativeBalance         = errors.New("balance cannot go negative")
	ErrNotPending              = errors.New("record is no longer pending")
	ErrTokenInvalid            = errors.New("reset token invalid or expired")
)

// Postgres error codes the repositories translate.
const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserFilter narrows admin user listings.
type UserFilter struct {
	Search string
	Status string
	Limit  int
	Offset int
}

// TaskFilter narrows task listings.
type TaskFilter struct {
	Status   string
	Category string
	Limit    int
	Offset   int
}

// SubmissionFilter narrows submission listings.
type SubmissionFilter struct {
	Status string
	UserID int64
	TaskID int64
	Limit  int
	Offset int
}

// WithdrawalFilter narrows withdrawal listings.
type WithdrawalFilter struct {
	Status string
	UserID int64
	Limit  int
	Offset int
}

// UserStore persists accounts and their denormalized balance.
type UserStore interface {
	Create(ctx context.Context, name, email, passwordHash, role string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	AddPoints(ctx context.Context, id int64, delta int64) (*model.User, error)
	IncrementTasksCompleted(ctx context.Context, id int64) error
	MarkWelcomeBonus(ctx context.Context, id int64) (bool, error)
	MarkDailyBonus(ctx context.Context, id int64, day time.Time) (bool, error)
	UpdateStreak(ctx context.Context, id int64, streak int, day time.Time) error
	TouchLogin(ctx context.Context, id int64, at time.Time) error
	UpdateName(ctx context.Context, id int64, name string) (*model.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	SetStatus(ctx context.Context, id int64, status string) (*model.User, error)
	List(ctx context.Context, filter UserFilter) ([]*model.User, error)
	Count(ctx context.Context) (int64, error)
	TotalPoints(ctx context.Context) (int64, error)
	TopByPoints(ctx context.Context, limit int) ([]*model.User, error)
	TopByTasksCompleted(ctx context.Context, limit int) ([]*model.User, error)
}

// TransactionStore persists the append-only ledger.
type TransactionStore interface {
	Create(ctx context.Context, tx *model.Transaction) (*model.Transaction, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*model.Transaction, error)
	SumByUser(ctx context.Context, userID int64) (int64, error)
	CountByUserAndType(ctx context.Context, userID int64, txType string) (int64, error)
	DailyEarners(ctx context.Context, day time.Time, limit int) ([]*model.DailyRank, error)
}

// TaskStore persists tasks and per-user task starts.
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) (*model.Task, error)
	Update(ctx context.Context, task *model.Task) (*model.Task, error)
	GetByID(ctx context.Context, id int64) (*model.Task, error)
	SetStatus(ctx context.Context, id int64, status string) (*model.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]*model.Task, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	Start(ctx context.Context, userID, taskID int64, at time.Time) (bool, error)
	StartsByUser(ctx context.Context, userID int64) (map[int64]time.Time, error)
}

// SubmissionStore persists proof submissions.
type SubmissionStore interface {
	Create(ctx context.Context, sub *model.Submission) (*model.Submission, error)
	GetByID(ctx context.Context, id int64) (*model.Submission, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.Submission, error)
	MarkReviewed(ctx context.Context, id int64, status string, reviewerID int64, reason *string, awarded *int64, at time.Time) (*model.Submission, error)
	HasApproved(ctx context.Context, userID, taskID int64) (bool, error)
	LatestByUser(ctx context.Context, userID int64) (map[int64]*model.Submission, error)
	List(ctx context.Context, filter SubmissionFilter) ([]*model.Submission, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
}

// WithdrawalStore persists payout requests.
type WithdrawalStore interface {
	Create(ctx context.Context, w *model.Withdrawal) (*model.Withdrawal, error)
	GetByID(ctx context.Context, id int64) (*model.Withdrawal, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.Withdrawal, error)
	MarkReviewed(ctx context.Context, id int64, status string, reviewerID int64, at time.Time) (*model.Withdrawal, error)
	List(ctx context.Context, filter WithdrawalFilter) ([]*model.Withdrawal, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
}

// ResetTokenStore persists single-use password reset tokens by hash.
type ResetTokenStore interface {
	Create(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error
	Consume(ctx context.Context, tokenHash string, now time.Time) (int64, error)
}

// Repositories groups the stores bound to one connection or transaction.
type Repositories interface {
	Users() UserStore
	Transactions() TransactionStore
	Tasks() TaskStore
	Submissions() SubmissionStore
	Withdrawals() WithdrawalStore
	ResetTokens() ResetTokenStore
}

// Store exposes the repositories and runs work in a single database transaction.
type Store interface {
	Repositories
	InTx(ctx context.Context, fn func(Repositories) error) error
}

// repos binds every repository to the same DBTX.
type repos struct {
	users       *UserRepository
	txs         *TransactionRepository
	tasks       *TaskRepository
	submissions *SubmissionRepository
	withdrawals *WithdrawalRepository
	resets      *ResetTokenRepository
}

func newRepos(db DBTX) *repos {
	return &repos{
		users:       NewUserRepository(db),
		txs:         NewTransactionRepository(db),
		tasks:       NewTaskRepository(db),
		submissions: NewSubmissionRepository(db),
		withdrawals: NewWithdrawalRepository(db),
		resets:      NewResetTokenRepository(db),
	}
}

func (r *repos) Users() UserStore               { return r.users }
func (r *repos) Transactions() TransactionStore { return r.txs }
func (r *repos) Tasks() TaskStore               { return r.tasks }
func (r *repos) Submissions() SubmissionStore   { return r.submissions }
func (r *repos) Withdrawals() WithdrawalStore   { return r.withdrawals }
func (r *repos) ResetTokens() ResetTokenStore   { return r.resets }

// PGStore is the PostgreSQL implementation of Store.
type PGStore struct {
	*repos
	pool *pgxpool.Pool
}

// NewStore creates a PGStore over the pool.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{repos: newRepos(pool), pool: pool}
}

// InTx runs fn inside a transaction. The transaction commits when fn returns
// nil and rolls back otherwise.
func (s *PGStore) InTx(ctx context.Context, fn func(Repositories) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(newRepos(tx))
	})
}

func pgErrorCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// PageLimit applies the default and maximum page size.
func PageLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// PageOffset clamps negative offsets to zero.
func PageOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func notFound(err error, sentinel error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
