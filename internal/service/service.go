// Package service provides business logic implementations.
//
// Every balance change goes through post, which runs inside a store
// transaction with the user row locked, so the running balance and the ledger
// always move together. Activities and notifications are best-effort and are
// written after the transaction commits.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"taskkash/internal/model"
	"taskkash/internal/pkg/lock"
	"taskkash/internal/pkg/metrics"
	"taskkash/internal/repository"
)

// Service errors.
var (
	ErrInsufficientBalance        = errors.New("insufficient balance")
	ErrDailyBonusClaimed          = errors.New("already claimed today")
	ErrEmailTaken                 = errors.New("email already registered")
	ErrInvalidCredentials         = errors.New("invalid email or password")
	ErrWrongPassword              = errors.New("current password is incorrect")
	ErrAccountSuspended           = errors.New("account suspended")
	ErrUnauthenticated            = errors.New("authentication required")
	ErrRateLimited                = errors.New("too many attempts, try again later")
	ErrInvalidResetToken          = errors.New("reset link is invalid or has expired")
	ErrTaskUnavailable            = errors.New("task is not open for submissions")
	ErrTaskAlreadyStarted         = errors.New("task already started")
	ErrTaskAlreadyCompleted       = errors.New("task already completed")
	ErrPendingSubmissionExists    = errors.New("a submission for this task is already pending review")
	ErrSubmissionAlreadyReviewed  = errors.New("submission has already been reviewed")
	ErrWithdrawalAlreadyProcessed = errors.New("withdrawal has already been processed")
	ErrCannotModifySelf           = errors.New("admins cannot change their own status")
)

// ValidationError carries field level input errors.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type validation struct {
	fields map[string]string
}

func (v *validation) add(field, msg string) {
	if v.fields == nil {
		v.fields = make(map[string]string)
	}
	if _, ok := v.fields[field]; !ok {
		v.fields[field] = msg
	}
}

func (v *validation) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

func fieldError(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// ActivityRecorder stores activity trail entries.
type ActivityRecorder interface {
	Record(ctx context.Context, a *model.Activity) error
}

// Notifier sends best-effort notifications. Implementations never fail the
// caller.
type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, event, title, body string)
	NotifyAdmins(ctx context.Context, userID int64, event, title, body string)
	SendEmail(ctx context.Context, to, subject, body string)
}

// Deps are the collaborators shared by every service.
type Deps struct {
	Store      repository.Store
	Locks      *lock.UserLock
	Activities ActivityRecorder
	Notifier   Notifier
	Now        func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// withUserLock serializes balance operations of one user inside this process.
func (d Deps) withUserLock(ctx context.Context, userID int64, fn func() error) error {
	if d.Locks == nil {
		return fn()
	}
	return d.Locks.WithLock(ctx, userID, fn)
}

func (d Deps) recordActivity(ctx context.Context, a *model.Activity) {
	if d.Activities == nil {
		return
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = d.now()
	}
	if err := d.Activities.Record(ctx, a); err != nil {
		log.Warn().Err(err).
			Int64("user_id", a.UserID).
			Str("type", a.Type).
			Msg("Failed to record activity")
		metrics.SideEffectFailures.WithLabelValues("activity").Inc()
	}
}

func (d Deps) notifyUser(ctx context.Context, userID int64, event, title, body string) {
	if d.Notifier != nil {
		d.Notifier.NotifyUser(ctx, userID, event, title, body)
	}
}

func (d Deps) notifyAdmins(ctx context.Context, userID int64, event, title, body string) {
	if d.Notifier != nil {
		d.Notifier.NotifyAdmins(ctx, userID, event, title, body)
	}
}

func (d Deps) sendEmail(ctx context.Context, to, subject, body string) {
	if d.Notifier != nil {
		d.Notifier.SendEmail(ctx, to, subject, body)
	}
}

// post applies amount to the user's balance and appends the matching ledger
// row. It must run inside a store transaction.
func post(ctx context.Context, r repository.Repositories, userID, amount int64, txType, description, reference string) (*model.User, *model.Transaction, error) {
	user, err := r.Users().GetByIDForUpdate(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock user: %w", err)
	}
	if user.TaskPoints+amount < 0 {
		return nil, nil, ErrInsufficientBalance
	}

	user, err = r.Users().AddPoints(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, repository.ErrNegativeBalance) {
			return nil, nil, ErrInsufficientBalance
		}
		return nil, nil, fmt.Errorf("failed to update balance: %w", err)
	}

	tx, err := r.Transactions().Create(ctx, &model.Transaction{
		UserID:      userID,
		Amount:      amount,
		Type:        txType,
		Description: description,
		Reference:   reference,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record transaction: %w", err)
	}
	return user, tx, nil
}

// observePosting records metrics for a committed ledger row.
func observePosting(tx *model.Transaction) {
	if tx == nil {
		return
	}
	amount := tx.Amount
	if amount < 0 {
		amount = -amount
	}
	metrics.LedgerPostings.WithLabelValues(tx.Type).Inc()
	metrics.LedgerPoints.WithLabelValues(tx.Type).Add(float64(amount))
}

// utcDay truncates t to midnight UTC.
func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ref(kind string, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}
