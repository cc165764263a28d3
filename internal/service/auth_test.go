package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskkash/internal/model"
)

func TestAuth_Register(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.auth.Register(ctx, RegisterInput{Name: " Ada ", Email: "Ada@Example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "Ada", sess.User.Name)
	assert.Equal(t, "ada@example.com", sess.User.Email)
	assert.Equal(t, model.RoleUser, sess.User.Role)
	assert.Equal(t, int64(50), sess.User.TaskPoints)
	assert.True(t, sess.User.WelcomeBonusGranted)
	assert.Equal(t, []string{"user_registered"}, f.notifier.events(f.notifier.admin))

	_, err = f.auth.Register(ctx, RegisterInput{Name: "Other", Email: "ADA@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	admin, err := f.auth.Register(ctx, RegisterInput{Name: "Boss", Email: adminEmail, Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.User.Role)
}

func TestAuth_RegisterValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.Register(context.Background(), RegisterInput{Name: "A", Email: "not-an-email", Password: "short"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "password")
}

func TestAuth_LoginAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")

	_, err := f.auth.Login(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.auth.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	sess, err := f.auth.Login(ctx, " ADA@example.com ", "password123")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.User.DailyStreak)
	require.NotNil(t, sess.User.LastLoginAt)

	user, err := f.auth.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, user.ID)

	_, err = f.auth.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuth_LoginStreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "Ada", "ada@example.com")

	login := func() int {
		sess, err := f.auth.Login(ctx, "ada@example.com", "password123")
		require.NoError(t, err)
		stored, err := f.store.Users().GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, stored.DailyStreak, sess.User.DailyStreak)
		return stored.DailyStreak
	}

	assert.Equal(t, 1, login())
	assert.Equal(t, 1, login(), "same day is a no-op")

	for want := 2; want <= 6; want++ {
		f.clock.Advance(24 * time.Hour)
		assert.Equal(t, want, login())
	}
	f.clock.Advance(24 * time.Hour)
	assert.Equal(t, 0, login(), "seventh day wraps")

	f.clock.Advance(72 * time.Hour)
	assert.Equal(t, 1, login(), "gap resets")
}

func TestAuth_SuspendedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "Ada", "ada@example.com")
	sess, err := f.auth.Login(ctx, "ada@example.com", "password123")
	require.NoError(t, err)

	_, err = f.store.Users().SetStatus(ctx, u.ID, model.UserStatusSuspended)
	require.NoError(t, err)

	_, err = f.auth.Login(ctx, "ada@example.com", "password123")
	assert.ErrorIs(t, err, ErrAccountSuspended)
	_, err = f.auth.Authenticate(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrAccountSuspended)
}

func TestAuth_ChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "Ada", "ada@example.com")

	err := f.auth.ChangePassword(ctx, u.ID, "wrong-password", "newpassword1")
	assert.ErrorIs(t, err, ErrWrongPassword)

	require.NoError(t, f.auth.ChangePassword(ctx, u.ID, "password123", "newpassword1"))
	_, err = f.auth.Login(ctx, "ada@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.auth.Login(ctx, "ada@example.com", "newpassword1")
	require.NoError(t, err)

	// The limiter allows three attempts per window.
	err = f.auth.ChangePassword(ctx, u.ID, "newpassword1", "newpassword2")
	require.NoError(t, err)
	err = f.auth.ChangePassword(ctx, u.ID, "newpassword2", "newpassword3")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestAuth_PasswordReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")

	require.NoError(t, f.auth.ForgotPassword(ctx, "nobody@example.com"))
	assert.Empty(t, f.notifier.emails)

	require.NoError(t, f.auth.ForgotPassword(ctx, "ada@example.com"))
	require.Len(t, f.notifier.emails, 1)
	assert.Equal(t, "ada@example.com", f.notifier.emails[0].to)

	body := f.notifier.emails[0].body
	i := strings.Index(body, "?token=")
	require.Positive(t, i)
	tok := strings.TrimSpace(body[i+len("?token="):])

	err := f.auth.ResetPassword(ctx, "not-the-token", "brandnew123")
	assert.ErrorIs(t, err, ErrInvalidResetToken)

	require.NoError(t, f.auth.ResetPassword(ctx, tok, "brandnew123"))
	_, err = f.auth.Login(ctx, "ada@example.com", "brandnew123")
	require.NoError(t, err)

	err = f.auth.ResetPassword(ctx, tok, "again12345")
	assert.ErrorIs(t, err, ErrInvalidResetToken, "tokens are single use")
}

func TestAuth_PasswordResetExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")

	require.NoError(t, f.auth.ForgotPassword(ctx, "ada@example.com"))
	body := f.notifier.emails[0].body
	tok := strings.TrimSpace(body[strings.Index(body, "?token=")+len("?token="):])

	f.clock.Advance(2 * time.Hour)
	assert.ErrorIs(t, f.auth.ResetPassword(ctx, tok, "brandnew123"), ErrInvalidResetToken)
}

func TestAuth_UpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "Ada", "ada@example.com")

	updated, err := f.auth.UpdateProfile(ctx, u.ID, "Ada Lovelace")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", updated.Name)

	activities, err := f.feed.Activities(ctx, u.ID, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, activities)
	assert.Equal(t, model.ActivityProfileUpdate, activities[0].Type)

	_, err = f.auth.UpdateProfile(ctx, u.ID, "")
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}
