package service

import (
	"context"
	"time"

	"taskkash/internal/model"
	"taskkash/internal/repository"
)

// DefaultLeaderboardSize is used when callers pass a non-positive limit.
const DefaultLeaderboardSize = 10

// Leaderboard groups the three public rankings.
type Leaderboard struct {
	TopEarners   []*model.User      `json:"topEarners"`
	TopCompleted []*model.User      `json:"topCompleted"`
	Today        []*model.DailyRank `json:"today"`
}

// RankingService handles ranking and leaderboard operations.
type RankingService struct {
	store repository.Store
	now   func() time.Time
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(deps Deps) *RankingService {
	return &RankingService{store: deps.Store, now: deps.now}
}

func leaderboardLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardSize
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// TopByPoints retrieves the active users with the highest balance.
func (s *RankingService) TopByPoints(ctx context.Context, limit int) ([]*model.User, error) {
	return s.store.Users().TopByPoints(ctx, leaderboardLimit(limit))
}

// TopByTasksCompleted retrieves the active users with the most approved tasks.
func (s *RankingService) TopByTasksCompleted(ctx context.Context, limit int) ([]*model.User, error) {
	return s.store.Users().TopByTasksCompleted(ctx, leaderboardLimit(limit))
}

// DailyEarners retrieves today's (UTC) top earners from task rewards.
func (s *RankingService) DailyEarners(ctx context.Context, limit int) ([]*model.DailyRank, error) {
	return s.DailyEarnersOn(ctx, s.now(), limit)
}

// DailyEarnersOn retrieves the top earners for the UTC day containing day.
func (s *RankingService) DailyEarnersOn(ctx context.Context, day time.Time, limit int) ([]*model.DailyRank, error) {
	return s.store.Transactions().DailyEarners(ctx, utcDay(day), leaderboardLimit(limit))
}

// Leaderboard returns every ranking at once.
func (s *RankingService) Leaderboard(ctx context.Context, limit int) (*Leaderboard, error) {
	points, err := s.TopByPoints(ctx, limit)
	if err != nil {
		return nil, err
	}
	completed, err := s.TopByTasksCompleted(ctx, limit)
	if err != nil {
		return nil, err
	}
	today, err := s.DailyEarners(ctx, limit)
	if err != nil {
		return nil, err
	}
	lb := &Leaderboard{TopEarners: points, TopCompleted: completed, Today: today}
	if lb.TopEarners == nil {
		lb.TopEarners = []*model.User{}
	}
	if lb.TopCompleted == nil {
		lb.TopCompleted = []*model.User{}
	}
	if lb.Today == nil {
		lb.Today = []*model.DailyRank{}
	}
	return lb, nil
}
