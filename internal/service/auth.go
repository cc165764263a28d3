package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"taskkash/internal/config"
	"taskkash/internal/model"
	"taskkash/internal/pkg/ratelimit"
	"taskkash/internal/pkg/token"
	"taskkash/internal/repository"
)

// Password policy.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72 // bcrypt ignores bytes past 72
)

// Session is the result of a successful sign-in.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// AuthService handles accounts, sessions and password management.
type AuthService struct {
	Deps
	ledger      *LedgerService
	tokens      *token.Manager
	limiter     ratelimit.Limiter
	cfg         config.AuthConfig
	isAdmin     func(email string) bool
	streakCycle int
}

// NewAuthService creates a new AuthService instance.
func NewAuthService(deps Deps, ledger *LedgerService, tokens *token.Manager, limiter ratelimit.Limiter, cfg *config.Config) *AuthService {
	return &AuthService{
		Deps:        deps,
		ledger:      ledger,
		tokens:      tokens,
		limiter:     limiter,
		cfg:         cfg.Auth,
		isAdmin:     cfg.IsAdminEmail,
		streakCycle: cfg.Rewards.StreakCycle,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateName(v *validation, name string) {
	n := len([]rune(name))
	if n < 2 || n > 100 {
		v.add("name", "must be between 2 and 100 characters")
	}
}

func validatePassword(v *validation, field, password string) {
	if len(password) < MinPasswordLength {
		v.add(field, fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	} else if len(password) > MaxPasswordLength {
		v.add(field, fmt.Sprintf("must be at most %d characters", MaxPasswordLength))
	}
}

func (s *AuthService) hash(password string) (string, error) {
	cost := s.cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

func (s *AuthService) session(user *model.User) (*Session, error) {
	tok, exp, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: tok, ExpiresAt: exp, User: user}, nil
}

// Register creates an account, grants the welcome bonus and signs the user in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	var v validation
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	validateName(&v, name)
	if _, err := mail.ParseAddress(email); err != nil {
		v.add("email", "must be a valid email address")
	}
	validatePassword(&v, "password", in.Password)
	if err := v.err(); err != nil {
		return nil, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	role := model.RoleUser
	if s.isAdmin != nil && s.isAdmin(email) {
		role = model.RoleAdmin
	}

	user, err := s.Store.Users().Create(ctx, name, email, hash, role)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	log.Info().Int64("user_id", user.ID).Str("role", role).Msg("User registered")

	if _, err := s.ledger.EnsureWelcomeBonus(ctx, user.ID); err != nil {
		log.Warn().Err(err).Int64("user_id", user.ID).Msg("Welcome bonus grant failed at registration")
	} else if fresh, err := s.Store.Users().GetByID(ctx, user.ID); err == nil {
		user = fresh
	}

	s.notifyAdmins(ctx, user.ID, "user_registered", "New user",
		fmt.Sprintf("%s <%s> just signed up", user.Name, user.Email))

	return s.session(user)
}

// Login verifies credentials, updates the login streak and issues a session.
// Streak and last-login persistence never fail the login.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.Store.Users().GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Status == model.UserStatusSuspended {
		return nil, ErrAccountSuspended
	}

	now := s.now()
	if next, changed := NextStreak(user.LastStreakDate, user.DailyStreak, now, s.streakCycle); changed {
		if err := s.Store.Users().UpdateStreak(ctx, user.ID, next, now); err != nil {
			log.Warn().Err(err).Int64("user_id", user.ID).Msg("Failed to update login streak")
		} else {
			day := utcDay(now)
			user.DailyStreak = next
			user.LastStreakDate = &day
		}
	}
	if err := s.Store.Users().TouchLogin(ctx, user.ID, now); err != nil {
		log.Warn().Err(err).Int64("user_id", user.ID).Msg("Failed to record last login")
	} else {
		user.LastLoginAt = &now
	}

	return s.session(user)
}

// Authenticate resolves a session token to an active user.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*model.User, error) {
	claims, err := s.tokens.Parse(tokenString)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	user, err := s.Store.Users().GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if user.Status == model.UserStatusSuspended {
		return nil, ErrAccountSuspended
	}
	return user, nil
}

// Me returns the caller's account.
func (s *AuthService) Me(ctx context.Context, userID int64) (*model.User, error) {
	return s.Store.Users().GetByID(ctx, userID)
}

// UpdateProfile changes the display name.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, name string) (*model.User, error) {
	var v validation
	name = strings.TrimSpace(name)
	validateName(&v, name)
	if err := v.err(); err != nil {
		return nil, err
	}

	user, err := s.Store.Users().UpdateName(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	s.recordActivity(ctx, &model.Activity{
		UserID:      userID,
		Type:        model.ActivityProfileUpdate,
		Title:       "Profile updated",
		Description: "Display name changed to " + name,
	})
	return user, nil
}

// ChangePassword replaces the password after verifying the current one.
// Attempts are limited per user across every instance sharing the limiter.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if s.limiter != nil {
		allowed, retryAfter, err := s.limiter.Allow(ctx, "password:"+strconv.FormatInt(userID, 10))
		if err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("Password limiter unavailable, allowing attempt")
		} else if !allowed {
			return fmt.Errorf("%w (retry in %s)", ErrRateLimited, retryAfter.Round(time.Second))
		}
	}

	var v validation
	if current == "" {
		v.add("currentPassword", "is required")
	}
	validatePassword(&v, "newPassword", next)
	if err := v.err(); err != nil {
		return err
	}

	user, err := s.Store.Users().GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return ErrWrongPassword
	}

	hash, err := s.hash(next)
	if err != nil {
		return err
	}
	if err := s.Store.Users().UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	log.Info().Int64("user_id", userID).Msg("Password changed")
	return nil
}

func hashResetToken(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}

// ForgotPassword emails a single-use reset link. Unknown addresses succeed
// silently so the endpoint does not reveal which emails are registered.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.Store.Users().GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}

	tok := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	ttl := s.cfg.ResetTokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := s.Store.ResetTokens().Create(ctx, hashResetToken(tok), user.ID, s.now().Add(ttl)); err != nil {
		return err
	}

	link := s.cfg.ResetURL + "?token=" + tok
	s.sendEmail(ctx, user.Email, "Reset your TaskKash password",
		fmt.Sprintf("Hi %s,\n\nUse the link below to choose a new password. It expires in %s.\n\n%s\n", user.Name, ttl, link))
	return nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *AuthService) ResetPassword(ctx context.Context, tok, password string) error {
	var v validation
	if strings.TrimSpace(tok) == "" {
		v.add("token", "is required")
	}
	validatePassword(&v, "password", password)
	if err := v.err(); err != nil {
		return err
	}

	hash, err := s.hash(password)
	if err != nil {
		return err
	}

	var userID int64
	err = s.Store.InTx(ctx, func(r repository.Repositories) error {
		id, err := r.ResetTokens().Consume(ctx, hashResetToken(tok), s.now())
		if err != nil {
			if errors.Is(err, repository.ErrTokenInvalid) {
				return ErrInvalidResetToken
			}
			return err
		}
		userID = id
		return r.Users().UpdatePassword(ctx, id, hash)
	})
	if err != nil {
		return err
	}
	log.Info().Int64("user_id", userID).Msg("Password reset")
	return nil
}
