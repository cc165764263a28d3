package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"taskkash/internal/config"
	"taskkash/internal/model"
	"taskkash/internal/pkg/metrics"
	"taskkash/internal/repository"
)

// Withdrawal defaults used when the configuration leaves them unset.
const (
	DefaultMinWithdrawal   = 500
	DefaultMinWalletLength = 10
)

// WithdrawalInput is a payout request.
type WithdrawalInput struct {
	Amount        int64
	Type          string
	BankName      string
	AccountName   string
	AccountNumber string
	Network       string
	WalletAddress string
}

// WithdrawalService handles payout requests and their review.
type WithdrawalService struct {
	Deps
	minAmount       int64
	rate            decimal.Decimal
	networks        []string
	minWalletLength int
}

// NewWithdrawalService creates a new WithdrawalService instance.
func NewWithdrawalService(deps Deps, cfg config.WithdrawalConfig) (*WithdrawalService, error) {
	rate, err := cfg.Rate()
	if err != nil {
		return nil, err
	}
	s := &WithdrawalService{
		Deps:            deps,
		minAmount:       cfg.MinAmount,
		rate:            rate,
		minWalletLength: cfg.MinWalletLength,
	}
	if s.minAmount <= 0 {
		s.minAmount = DefaultMinWithdrawal
	}
	if s.minWalletLength <= 0 {
		s.minWalletLength = DefaultMinWalletLength
	}
	for _, n := range cfg.CryptoNetworks {
		s.networks = append(s.networks, strings.ToUpper(strings.TrimSpace(n)))
	}
	if len(s.networks) == 0 {
		s.networks = []string{"TRC20", "ERC20"}
	}
	return s, nil
}

// ConvertPoints returns the USD value of amount points.
func (s *WithdrawalService) ConvertPoints(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Mul(s.rate)
}

func (s *WithdrawalService) validate(in *WithdrawalInput) error {
	var v validation
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	in.BankName = strings.TrimSpace(in.BankName)
	in.AccountName = strings.TrimSpace(in.AccountName)
	in.AccountNumber = strings.TrimSpace(in.AccountNumber)
	in.Network = strings.ToUpper(strings.TrimSpace(in.Network))
	in.WalletAddress = strings.TrimSpace(in.WalletAddress)

	if in.Amount < s.minAmount {
		v.add("amount", fmt.Sprintf("minimum withdrawal is %d TP", s.minAmount))
	}
	switch in.Type {
	case model.WithdrawalBank:
		if in.BankName == "" {
			v.add("bankName", "is required for bank transfers")
		}
		if in.AccountName == "" {
			v.add("accountName", "is required for bank transfers")
		}
		if in.AccountNumber == "" {
			v.add("accountNumber", "is required for bank transfers")
		}
		in.Network, in.WalletAddress = "", ""
	case model.WithdrawalCrypto:
		if !contains(s.networks, in.Network) {
			v.add("network", "must be one of "+strings.Join(s.networks, ", "))
		}
		if len(in.WalletAddress) < s.minWalletLength {
			v.add("walletAddress", fmt.Sprintf("must be at least %d characters", s.minWalletLength))
		}
		in.BankName, in.AccountName, in.AccountNumber = "", "", ""
	default:
		v.add("withdrawalType", "must be bank or crypto")
	}
	return v.err()
}

// RequestWithdrawal debits the balance and files a pending payout. The
// balance check, debit, withdrawal row and ledger row commit together.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, userID int64, in WithdrawalInput) (*model.Withdrawal, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}

	var (
		w  *model.Withdrawal
		tx *model.Transaction
	)
	err := s.withUserLock(ctx, userID, func() error {
		return s.Store.InTx(ctx, func(r repository.Repositories) error {
			user, err := r.Users().GetByIDForUpdate(ctx, userID)
			if err != nil {
				return fmt.Errorf("failed to lock user: %w", err)
			}
			if user.TaskPoints < in.Amount {
				return ErrInsufficientBalance
			}

			w, err = r.Withdrawals().Create(ctx, &model.Withdrawal{
				UserID:          userID,
				Amount:          in.Amount,
				ConvertedAmount: s.ConvertPoints(in.Amount),
				Type:            in.Type,
				BankName:        in.BankName,
				AccountName:     in.AccountName,
				AccountNumber:   in.AccountNumber,
				Network:         in.Network,
				WalletAddress:   in.WalletAddress,
			})
			if err != nil {
				return err
			}

			_, tx, err = post(ctx, r, userID, -in.Amount, model.TxTypeWithdrawal,
				fmt.Sprintf("Withdrawal via %s", in.Type), ref("withdrawal", w.ID))
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	observePosting(tx)
	metrics.WithdrawalsRequested.WithLabelValues(w.Type).Inc()
	log.Info().
		Int64("user_id", userID).
		Int64("withdrawal_id", w.ID).
		Int64("amount", w.Amount).
		Str("type", w.Type).
		Msg("Withdrawal requested")

	s.recordActivity(ctx, &model.Activity{
		UserID:      userID,
		Type:        model.ActivityWithdrawalRequest,
		Title:       "Withdrawal requested",
		Description: fmt.Sprintf("%d TP ($%s) via %s", w.Amount, w.ConvertedAmount.StringFixed(2), w.Type),
		Points:      -w.Amount,
	})
	s.notifyAdmins(ctx, userID, "withdrawal_requested", "New withdrawal",
		fmt.Sprintf("Withdrawal #%d: %d TP ($%s) via %s", w.ID, w.Amount, w.ConvertedAmount.StringFixed(2), w.Type))
	return w, nil
}

// ReviewWithdrawal approves or rejects a pending withdrawal. Rejection refunds
// the full amount with one compensating ledger row.
func (s *WithdrawalService) ReviewWithdrawal(ctx context.Context, adminID, withdrawalID int64, status string) (*model.Withdrawal, error) {
	if status != model.StatusApproved && status != model.StatusRejected {
		return nil, fieldError("status", "must be approved or rejected")
	}

	current, err := s.Store.Withdrawals().GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if current.Status != model.StatusPending {
		return nil, ErrWithdrawalAlreadyProcessed
	}

	now := s.now()
	var (
		w  *model.Withdrawal
		tx *model.Transaction
	)
	err = s.withUserLock(ctx, current.UserID, func() error {
		return s.Store.InTx(ctx, func(r repository.Repositories) error {
			locked, err := r.Withdrawals().GetByIDForUpdate(ctx, withdrawalID)
			if err != nil {
				return err
			}
			if locked.Status != model.StatusPending {
				return ErrWithdrawalAlreadyProcessed
			}
			w, err = r.Withdrawals().MarkReviewed(ctx, withdrawalID, status, adminID, now)
			if err != nil {
				if errors.Is(err, repository.ErrNotPending) {
					return ErrWithdrawalAlreadyProcessed
				}
				return err
			}
			if status != model.StatusRejected {
				return nil
			}
			_, tx, err = post(ctx, r, w.UserID, w.Amount, model.TxTypeWithdrawalRefund,
				fmt.Sprintf("Refund for rejected withdrawal #%d", w.ID), ref("withdrawal", w.ID))
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	observePosting(tx)
	metrics.WithdrawalsReviewed.WithLabelValues(status).Inc()
	log.Info().
		Int64("admin_id", adminID).
		Int64("withdrawal_id", w.ID).
		Int64("user_id", w.UserID).
		Str("status", status).
		Msg("Withdrawal reviewed")

	if status == model.StatusApproved {
		s.recordActivity(ctx, &model.Activity{
			UserID:      w.UserID,
			Type:        model.ActivityWithdrawalApproved,
			Title:       "Withdrawal approved",
			Description: fmt.Sprintf("Your withdrawal of %d TP ($%s) is on its way", w.Amount, w.ConvertedAmount.StringFixed(2)),
		})
		s.notifyUser(ctx, w.UserID, "withdrawal_approved", "Withdrawal approved",
			fmt.Sprintf("Your withdrawal of %d TP was approved.", w.Amount))
	} else {
		s.recordActivity(ctx, &model.Activity{
			UserID:      w.UserID,
			Type:        model.ActivityWithdrawalRejected,
			Title:       "Withdrawal rejected",
			Description: fmt.Sprintf("%d TP were returned to your balance", w.Amount),
			Points:      w.Amount,
		})
		s.notifyUser(ctx, w.UserID, "withdrawal_rejected", "Withdrawal rejected",
			fmt.Sprintf("Your withdrawal of %d TP was rejected and refunded.", w.Amount))
	}
	return w, nil
}

// ListUserWithdrawals lists the caller's withdrawals, newest first.
func (s *WithdrawalService) ListUserWithdrawals(ctx context.Context, userID int64, limit, offset int) ([]*model.Withdrawal, error) {
	return s.ListWithdrawals(ctx, repository.WithdrawalFilter{UserID: userID, Limit: limit, Offset: offset})
}

// ListWithdrawals lists withdrawals for admins.
func (s *WithdrawalService) ListWithdrawals(ctx context.Context, filter repository.WithdrawalFilter) ([]*model.Withdrawal, error) {
	ws, err := s.Store.Withdrawals().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		ws = []*model.Withdrawal{}
	}
	return ws, nil
}
