package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"taskkash/internal/model"
	"taskkash/internal/repository"
)

// AdminService handles user moderation and the admin overview.
type AdminService struct {
	Deps
}

// NewAdminService creates a new AdminService instance.
func NewAdminService(deps Deps) *AdminService {
	return &AdminService{Deps: deps}
}

// ListUsers lists accounts matching the filter.
func (s *AdminService) ListUsers(ctx context.Context, filter repository.UserFilter) ([]*model.User, error) {
	if filter.Status != "" && filter.Status != model.UserStatusActive && filter.Status != model.UserStatusSuspended {
		return nil, fieldError("status", "must be active or suspended")
	}
	users, err := s.Store.Users().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, nil
}

// GetUser returns one account.
func (s *AdminService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	return s.Store.Users().GetByID(ctx, userID)
}

// SetUserStatus suspends or reactivates an account. Admins cannot change
// their own status.
func (s *AdminService) SetUserStatus(ctx context.Context, adminID, userID int64, status string) (*model.User, error) {
	if status != model.UserStatusActive && status != model.UserStatusSuspended {
		return nil, fieldError("status", "must be active or suspended")
	}
	if adminID == userID {
		return nil, ErrCannotModifySelf
	}

	user, err := s.Store.Users().SetStatus(ctx, userID, status)
	if err != nil {
		return nil, err
	}
	log.Info().Int64("admin_id", adminID).Int64("user_id", userID).Str("status", status).Msg("User status changed")

	if status == model.UserStatusSuspended {
		s.notifyUser(ctx, userID, "account_suspended", "Account suspended",
			"Your account has been suspended. Contact support if you think this is a mistake.")
	} else {
		s.notifyUser(ctx, userID, "account_reactivated", "Account reactivated", "Your account is active again.")
	}
	return user, nil
}

// Dashboard returns the admin overview counters.
func (s *AdminService) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	users, err := s.Store.Users().Count(ctx)
	if err != nil {
		return nil, err
	}
	subs, err := s.Store.Submissions().CountByStatus(ctx, model.StatusPending)
	if err != nil {
		return nil, err
	}
	ws, err := s.Store.Withdrawals().CountByStatus(ctx, model.StatusPending)
	if err != nil {
		return nil, err
	}
	points, err := s.Store.Users().TotalPoints(ctx)
	if err != nil {
		return nil, err
	}
	return &model.Dashboard{
		Users:              users,
		PendingSubmissions: subs,
		PendingWithdrawals: ws,
		PointsOutstanding:  points,
	}, nil
}
