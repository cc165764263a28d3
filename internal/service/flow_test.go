package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskkash/internal/model"
	"taskkash/internal/repository"
)

func TestFlow_RegisterSubmitApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.register(t, "Boss", adminEmail)
	u := f.register(t, "Ada", "ada@example.com")

	bal, err := f.ledger.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), bal)

	task := f.createTask(t, 30, model.ValidationManual)
	res, err := f.tasks.SubmitProof(ctx, u.ID, SubmitInput{TaskID: task.ID, Proof: model.Proof{Notes: "followed"}})
	require.NoError(t, err)

	_, err = f.tasks.ReviewSubmission(ctx, admin.ID, res.SubmissionID, ReviewInput{Status: model.StatusApproved})
	require.NoError(t, err)

	user, err := f.auth.Me(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(80), user.TaskPoints)
	assert.Equal(t, int64(1), user.TasksCompleted)

	activities, err := f.feed.Activities(ctx, u.ID, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, activities)
	assert.Equal(t, model.ActivityTaskApproved, activities[0].Type)
	assert.Equal(t, int64(30), activities[0].Points)
}

func TestFlow_WithdrawalRejectRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "Ada", "ada@example.com")
	f.fund(t, u.ID, 950)
	require.Equal(t, int64(1000), f.balance(t, u.ID))

	w, err := f.withdrawals.RequestWithdrawal(ctx, u.ID, bankInput(500))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, w.Status)
	assert.Equal(t, int64(500), f.balance(t, u.ID))

	_, err = f.withdrawals.ReviewWithdrawal(ctx, 1, w.ID, model.StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), f.balance(t, u.ID))

	txs, err := f.ledger.History(ctx, u.ID, 10, 0)
	require.NoError(t, err)
	var refunds []*model.Transaction
	for _, tx := range txs {
		if tx.Type == model.TxTypeWithdrawalRefund {
			refunds = append(refunds, tx)
		}
	}
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(500), refunds[0].Amount)
}

func TestFlow_DailyBonusAcrossMidnight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "Ada", "ada@example.com")

	_, err := f.ledger.ClaimDailyBonus(ctx, u.ID, time.Date(2024, 5, 1, 0, 1, 0, 0, time.UTC))
	require.NoError(t, err)

	_, err = f.ledger.ClaimDailyBonus(ctx, u.ID, time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC))
	require.EqualError(t, err, "already claimed today")

	_, err = f.ledger.ClaimDailyBonus(ctx, u.ID, time.Date(2024, 5, 2, 0, 0, 1, 0, time.UTC))
	require.NoError(t, err)
}

func TestAdmin_UsersAndDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "Boss", adminEmail)
	u := f.register(t, "Ada", "ada@example.com")

	_, err := f.admin.SetUserStatus(ctx, admin.ID, admin.ID, model.UserStatusSuspended)
	assert.ErrorIs(t, err, ErrCannotModifySelf)

	suspended, err := f.admin.SetUserStatus(ctx, admin.ID, u.ID, model.UserStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusSuspended, suspended.Status)
	assert.Contains(t, f.notifier.events(f.notifier.user), "account_suspended")

	users, err := f.admin.ListUsers(ctx, repository.UserFilter{Status: model.UserStatusSuspended})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, u.ID, users[0].ID)

	_, err = f.admin.ListUsers(ctx, repository.UserFilter{Status: "banned"})
	assert.Error(t, err)

	task := f.createTask(t, 10, model.ValidationManual)
	_, err = f.admin.SetUserStatus(ctx, admin.ID, u.ID, model.UserStatusActive)
	require.NoError(t, err)
	_, err = f.tasks.SubmitProof(ctx, u.ID, SubmitInput{TaskID: task.ID, Proof: model.Proof{Notes: "x"}})
	require.NoError(t, err)

	dash, err := f.admin.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), dash.Users)
	assert.Equal(t, int64(1), dash.PendingSubmissions)
	assert.Zero(t, dash.PendingWithdrawals)
	assert.Equal(t, int64(100), dash.PointsOutstanding)
}

func TestRanking_Leaderboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Ada", "ada@example.com")
	b := f.register(t, "Bob", "bob@example.com")
	f.fund(t, b.ID, 500)

	task := f.createTask(t, 40, model.ValidationManual)
	res, err := f.tasks.SubmitProof(ctx, a.ID, SubmitInput{TaskID: task.ID, Proof: model.Proof{Notes: "x"}})
	require.NoError(t, err)
	_, err = f.tasks.ReviewSubmission(ctx, 1, res.SubmissionID, ReviewInput{Status: model.StatusApproved})
	require.NoError(t, err)

	lb, err := f.ranking.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, lb.TopEarners, 2)
	assert.Equal(t, b.ID, lb.TopEarners[0].ID)
	require.NotEmpty(t, lb.TopCompleted)
	assert.Equal(t, a.ID, lb.TopCompleted[0].ID)
	require.Len(t, lb.Today, 1, "only task rewards count towards daily earnings")
	assert.Equal(t, a.ID, lb.Today[0].UserID)
	assert.Equal(t, int64(40), lb.Today[0].Earned)

	f.clock.Advance(24 * time.Hour)
	today, err := f.ranking.DailyEarners(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, today)
}

func TestFeed_Notifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	notifications := f.docs.Notifications()
	require.NoError(t, notifications.Create(ctx, &model.Notification{UserID: 7, Kind: "x", Title: "one"}))
	require.NoError(t, notifications.Create(ctx, &model.Notification{UserID: 7, Kind: "y", Title: "two"}))

	inbox, err := f.feed.Notifications(ctx, 7, 10, 0)
	require.NoError(t, err)
	assert.Len(t, inbox.Items, 2)
	assert.Equal(t, int64(2), inbox.Unread)

	n, err := f.feed.MarkNotificationsRead(ctx, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	inbox, err = f.feed.Notifications(ctx, 7, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, inbox.Unread)

	require.NoError(t, f.docs.AdminNotifications().Create(ctx, &model.AdminNotification{Kind: "user_registered"}))
	admin, err := f.feed.AdminNotifications(ctx, true, 10, 0)
	require.NoError(t, err)
	require.Len(t, admin, 1)
	n, err = f.feed.MarkAdminNotificationsRead(ctx, []string{admin[0].ID.Hex()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
