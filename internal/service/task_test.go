package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskkash/internal/model"
	"taskkash/internal/repository"
)

func TestTask_CreateValidation(t *testing.T) {
	f := newFixture(t)
	past := f.clock.Now().Add(-time.Hour)

	_, err := f.tasks.CreateTask(context.Background(), 1, TaskInput{
		Title:          "x",
		Category:       "gaming",
		RewardPoints:   0,
		ValidationType: "quiz",
		Links:          []string{"javascript:alert(1)"},
		Deadline:       &past,
	})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	for _, field := range []string{"title", "description", "category", "rewardPoints", "validationType", "links", "deadline"} {
		assert.Contains(t, verr.Fields, field)
	}
}

func TestTask_StartOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "Ada", "ada@example.com")
	task := f.createTask(t, 30, model.ValidationManual)

	ut, err := f.tasks.StartTask(ctx, u.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateStarted, ut.State)

	_, err = f.tasks.StartTask(ctx, u.ID, task.ID)
	assert.ErrorIs(t, err, ErrTaskAlreadyStarted)

	_, err = f.tasks.StartTask(ctx, u.ID, 9999)
	assert.ErrorIs(t, err, repository.ErrTaskNotFound)
}

func TestTask_UnavailableTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "Ada", "ada@example.com")

	disabled := f.createTask(t, 10, model.ValidationManual)
	_, err := f.tasks.SetTaskStatus(ctx, 1, disabled.ID, model.TaskStatusDisabled)
	require.NoError(t, err)
	_, err = f.tasks.StartTask(ctx, u.ID, disabled.ID)
	assert.ErrorIs(t, err, ErrTaskUnavailable)

	deadline := f.clock.Now().Add(time.Hour)
	expiring, err := f.tasks.CreateTask(ctx, 1, TaskInput{
		Title: "Quick one", Description: "Hurry", Category: model.CategoryOther,
		RewardPoints: 5, ValidationType: model.ValidationManual, Deadline: &deadline,
	})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.tasks.SubmitProof(ctx, u.ID, SubmitInput{TaskID: expiring.ID, Proof: model.Proof{Notes: "late"}})
	assert.ErrorIs(t, err, ErrTaskUnavailable)

	list, err := f.tasks.ListForUser(ctx, u.ID, "", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, list, "overdue tasks are swept to expired")

	stored, err := f.tasks.GetTask(ctx, expiring.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusExpired, stored.Status)
}

func TestTask_SubmitValidatesProof(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "Ada", "ada@example.com")
	task := f.createTask(t, 30, model.ValidationLink, "https://instagram.com/taskkash")

	_, err := f.tasks.SubmitProof(ctx, u.ID, SubmitInput{TaskID: task.ID, Proof: model.Proof{Link: "https://evil.example/x"}})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "proofLink")

	res, err := f.tasks.SubmitProof(ctx, u.ID, SubmitInput{TaskID: task.ID, Proof: model.Proof{Link: "https://www.instagram.com/p/1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(30), res.RewardPoints)
	assert.NotZero(t, res.SubmissionID)
}

func TestTask_OnePendingSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "Ada", "ada@example.com")
	task := f.createTask(t, 30, model.ValidationManual)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		conflict int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tasks.SubmitProof(ctx, u.ID, SubmitInput{TaskID: task.ID, Proof: model.Proof{Notes: "done"}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrPendingSubmissionExists):
				conflict++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 9, conflict)

	ut, err := f.tasks.GetForUser(ctx, u.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateSubmitted, ut.State)
	assert.NotNil(t, ut.StartedAt, "submitting records the start")
	assert.Contains(t, f.notifier.events(f.notifier.admin), "submission_created")
}

func TestTask_ApproveAwardsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "Ada", "ada@example.com")
	task := f.createTask(t, 30, model.ValidationManual)

	res, err := f.tasks.SubmitProof(ctx, u.ID, SubmitInput{TaskID: task.ID, Proof: model.Proof{Notes: "done"}})
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		approved int
		already  int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tasks.ReviewSubmission(ctx, 1, res.SubmissionID, ReviewInput{Status: model.StatusApproved})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				approved++
			case errors.Is(err, ErrSubmissionAlreadyReviewed):
				already++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, approved)
	assert.Equal(t, 4, already)
	assert.Equal(t, int64(80), f.balance(t, u.ID))

	sub, err := f.store.Submissions().GetByID(ctx, res.SubmissionID)
	require.NoError(t, err)
	require.NotNil(t, sub.AwardedPoints)
	assert.Equal(t, int64(30), *sub.AwardedPoints)

	n, err := f.store.Transactions().CountByUserAndType(ctx, u.ID, model.TxTypeTaskReward)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.tasks.SubmitProof(ctx, u.ID, SubmitInput{TaskID: task.ID, Proof: model.Proof{Notes: "again"}})
	assert.ErrorIs(t, err, ErrTaskAlreadyCompleted)

	_, err = f.tasks.ReviewSubmission(ctx, 1, res.SubmissionID, ReviewInput{Status: model.StatusRejected, Reason: "late"})
	assert.ErrorIs(t, err, ErrSubmissionAlreadyReviewed)

	f.assertLedgerMatches(t, u.ID)
}

func TestTask_RejectThenResubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "Ada", "ada@example.com")
	task := f.createTask(t, 30, model.ValidationManual)

	res, err := f.tasks.SubmitProof(ctx, u.ID, SubmitInput{TaskID: task.ID, Proof: model.Proof{Notes: "done"}})
	require.NoError(t, err)

	_, err = f.tasks.ReviewSubmission(ctx, 1, res.SubmissionID, ReviewInput{Status: model.StatusRejected})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "a reason is required")

	sub, err := f.tasks.ReviewSubmission(ctx, 1, res.SubmissionID, ReviewInput{Status: model.StatusRejected, Reason: "no proof"})
	require.NoError(t, err)
	require.NotNil(t, sub.RejectionReason)
	assert.Equal(t, "no proof", *sub.RejectionReason)
	assert.Nil(t, sub.AwardedPoints)
	assert.Equal(t, int64(50), f.balance(t, u.ID))

	ut, err := f.tasks.GetForUser(ctx, u.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateRejected, ut.State)

	_, err = f.tasks.SubmitProof(ctx, u.ID, SubmitInput{TaskID: task.ID, Proof: model.Proof{Notes: "better proof"}})
	require.NoError(t, err)

	assert.Contains(t, f.notifier.events(f.notifier.user), "submission_rejected")
}

func TestTask_ListForUserStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "Ada", "ada@example.com")

	available := f.createTask(t, 10, model.ValidationManual)
	started := f.createTask(t, 20, model.ValidationManual)
	submitted := f.createTask(t, 30, model.ValidationManual)

	_, err := f.tasks.StartTask(ctx, u.ID, started.ID)
	require.NoError(t, err)
	_, err = f.tasks.SubmitProof(ctx, u.ID, SubmitInput{TaskID: submitted.ID, Proof: model.Proof{Notes: "done"}})
	require.NoError(t, err)

	list, err := f.tasks.ListForUser(ctx, u.ID, "", 0, 0)
	require.NoError(t, err)
	states := map[int64]string{}
	for _, ut := range list {
		states[ut.Task.ID] = ut.State
	}
	assert.Equal(t, model.TaskStateAvailable, states[available.ID])
	assert.Equal(t, model.TaskStateStarted, states[started.ID])
	assert.Equal(t, model.TaskStateSubmitted, states[submitted.ID])
}

func TestTask_ListForUserPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "Ada", "ada@example.com")

	first := f.createTask(t, 10, model.ValidationManual)
	second := f.createTask(t, 20, model.ValidationManual)
	third := f.createTask(t, 30, model.ValidationManual)

	ids := func(list []*model.UserTask) []int64 {
		var out []int64
		for _, ut := range list {
			out = append(out, ut.Task.ID)
		}
		return out
	}

	list, err := f.tasks.ListForUser(ctx, u.ID, "", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{third.ID, second.ID}, ids(list))

	list, err = f.tasks.ListForUser(ctx, u.ID, "", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{first.ID}, ids(list), "tasks past the first page stay reachable")

	list, err = f.tasks.ListForUser(ctx, u.ID, "", 2, 4)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTask_GetForUserHidesInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "Ada", "ada@example.com")
	task := f.createTask(t, 10, model.ValidationManual)
	_, err := f.tasks.SetTaskStatus(ctx, 1, task.ID, model.TaskStatusDisabled)
	require.NoError(t, err)

	_, err = f.tasks.GetForUser(ctx, u.ID, task.ID)
	assert.ErrorIs(t, err, repository.ErrTaskNotFound)

	_, err = f.tasks.SetTaskStatus(ctx, 1, task.ID, "archived")
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}
