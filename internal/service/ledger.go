package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"taskkash/internal/config"
	"taskkash/internal/model"
	"taskkash/internal/repository"
)

// LedgerService owns the points ledger and the fixed bonuses.
type LedgerService struct {
	Deps
	welcomeBonus int64
	dailyBonus   int64
}

// NewLedgerService creates a new LedgerService instance.
func NewLedgerService(deps Deps, rewards config.RewardsConfig) *LedgerService {
	return &LedgerService{
		Deps:         deps,
		welcomeBonus: rewards.WelcomeBonus,
		dailyBonus:   rewards.DailyBonus,
	}
}

var postableTypes = map[string]bool{
	model.TxTypeWelcomeBonus:     true,
	model.TxTypeDailyLogin:       true,
	model.TxTypeTaskReward:       true,
	model.TxTypeWithdrawal:       true,
	model.TxTypeWithdrawalRefund: true,
	model.TxTypeAdminAdjustment:  true,
}

// Post applies a signed amount to the user's balance and records it in the
// ledger, atomically. It fails with ErrInsufficientBalance when the balance
// would go negative.
func (s *LedgerService) Post(ctx context.Context, userID, amount int64, txType, description string) (*model.Transaction, error) {
	if amount == 0 {
		return nil, fieldError("amount", "must not be zero")
	}
	if !postableTypes[txType] {
		return nil, fieldError("type", fmt.Sprintf("unknown transaction type %q", txType))
	}

	var tx *model.Transaction
	err := s.withUserLock(ctx, userID, func() error {
		return s.Store.InTx(ctx, func(r repository.Repositories) error {
			var err error
			_, tx, err = post(ctx, r, userID, amount, txType, description, "")
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	observePosting(tx)
	return tx, nil
}

// EnsureWelcomeBonus grants the welcome bonus unless it was already granted.
// It reports whether this call granted it.
func (s *LedgerService) EnsureWelcomeBonus(ctx context.Context, userID int64) (bool, error) {
	var tx *model.Transaction
	err := s.withUserLock(ctx, userID, func() error {
		return s.Store.InTx(ctx, func(r repository.Repositories) error {
			if _, err := r.Users().GetByIDForUpdate(ctx, userID); err != nil {
				return fmt.Errorf("failed to lock user: %w", err)
			}
			granted, err := r.Users().MarkWelcomeBonus(ctx, userID)
			if err != nil || !granted {
				return err
			}
			_, tx, err = post(ctx, r, userID, s.welcomeBonus, model.TxTypeWelcomeBonus, "Welcome bonus", "")
			return err
		})
	})
	if err != nil {
		return false, err
	}
	if tx == nil {
		return false, nil
	}

	observePosting(tx)
	s.recordActivity(ctx, &model.Activity{
		UserID:      userID,
		Type:        model.ActivityBonus,
		Title:       "Welcome bonus",
		Description: fmt.Sprintf("You received %d TP for joining", s.welcomeBonus),
		Points:      s.welcomeBonus,
	})
	return true, nil
}

// Balance returns the user's balance, granting a missed welcome bonus on the
// way. A failed grant is logged and the stored balance is still returned.
func (s *LedgerService) Balance(ctx context.Context, userID int64) (int64, error) {
	user, err := s.Store.Users().GetByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	if user.TaskPoints != 0 || user.WelcomeBonusGranted {
		return user.TaskPoints, nil
	}

	if _, err := s.EnsureWelcomeBonus(ctx, userID); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Lazy welcome bonus grant failed")
		return user.TaskPoints, nil
	}

	user, err = s.Store.Users().GetByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return user.TaskPoints, nil
}

// ClaimDailyBonus grants the daily login bonus once per UTC calendar day.
func (s *LedgerService) ClaimDailyBonus(ctx context.Context, userID int64, now time.Time) (*model.Transaction, error) {
	day := utcDay(now)

	var tx *model.Transaction
	err := s.withUserLock(ctx, userID, func() error {
		return s.Store.InTx(ctx, func(r repository.Repositories) error {
			if _, err := r.Users().GetByIDForUpdate(ctx, userID); err != nil {
				return fmt.Errorf("failed to lock user: %w", err)
			}
			marked, err := r.Users().MarkDailyBonus(ctx, userID, day)
			if err != nil {
				return err
			}
			if !marked {
				return ErrDailyBonusClaimed
			}
			_, tx, err = post(ctx, r, userID, s.dailyBonus, model.TxTypeDailyLogin, "Daily login bonus", day.Format("2006-01-02"))
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	observePosting(tx)
	s.recordActivity(ctx, &model.Activity{
		UserID:      userID,
		Type:        model.ActivityBonus,
		Title:       "Daily login bonus",
		Description: fmt.Sprintf("You claimed %d TP", s.dailyBonus),
		Points:      s.dailyBonus,
	})
	return tx, nil
}

// ClaimToday claims the daily bonus for the current UTC day.
func (s *LedgerService) ClaimToday(ctx context.Context, userID int64) (*model.Transaction, error) {
	return s.ClaimDailyBonus(ctx, userID, s.now())
}

// History lists the user's ledger, newest first.
func (s *LedgerService) History(ctx context.Context, userID int64, limit, offset int) ([]*model.Transaction, error) {
	txs, err := s.Store.Transactions().ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []*model.Transaction{}
	}
	return txs, nil
}

// AdminAdjust applies a signed manual correction to a user's balance.
func (s *LedgerService) AdminAdjust(ctx context.Context, adminID, userID, amount int64, reason string) (*model.Transaction, error) {
	var v validation
	reason = strings.TrimSpace(reason)
	if amount == 0 {
		v.add("amount", "must not be zero")
	}
	if reason == "" {
		v.add("reason", "is required")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	var tx *model.Transaction
	err := s.withUserLock(ctx, userID, func() error {
		return s.Store.InTx(ctx, func(r repository.Repositories) error {
			var err error
			_, tx, err = post(ctx, r, userID, amount, model.TxTypeAdminAdjustment, reason, ref("admin", adminID))
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	observePosting(tx)
	log.Info().
		Int64("admin_id", adminID).
		Int64("user_id", userID).
		Int64("amount", amount).
		Str("reason", reason).
		Msg("Admin balance adjustment")
	s.notifyUser(ctx, userID, "balance_adjusted", "Balance adjusted",
		fmt.Sprintf("An admin adjusted your balance by %+d TP: %s", amount, reason))
	return tx, nil
}

// Reconcile compares the stored balance with the sum of the user's ledger.
func (s *LedgerService) Reconcile(ctx context.Context, userID int64) (*model.LedgerSummary, error) {
	user, err := s.Store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	sum, err := s.Store.Transactions().SumByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &model.LedgerSummary{
		UserID:    userID,
		Balance:   user.TaskPoints,
		LedgerSum: sum,
		Drift:     user.TaskPoints - sum,
	}
	if summary.Drift != 0 {
		log.Warn().
			Int64("user_id", userID).
			Int64("balance", summary.Balance).
			Int64("ledger_sum", summary.LedgerSum).
			Msg("Ledger drift detected")
	}
	return summary, nil
}
