package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"taskkash/internal/model"
	"taskkash/internal/pkg/metrics"
	"taskkash/internal/proof"
	"taskkash/internal/repository"
)

// TaskInput is the admin payload for creating or editing a task.
type TaskInput struct {
	Title          string
	Description    string
	Category       string
	RewardPoints   int64
	ValidationType string
	Instructions   string
	Links          []string
	Deadline       *time.Time
}

// SubmitInput is a user's proof for one task.
type SubmitInput struct {
	TaskID int64
	Proof  model.Proof
}

// SubmitResult is returned after a proof is accepted for review.
type SubmitResult struct {
	SubmissionID int64 `json:"submissionId"`
	RewardPoints int64 `json:"rewardPoints"`
}

// ReviewInput is an admin decision on a submission.
type ReviewInput struct {
	Status string
	Reason string
}

// TaskService manages tasks and the per-user submission lifecycle.
type TaskService struct {
	Deps
	proofs *proof.Registry
}

// NewTaskService creates a new TaskService instance.
func NewTaskService(deps Deps, proofs *proof.Registry) *TaskService {
	if proofs == nil {
		proofs = proof.Default()
	}
	return &TaskService{Deps: deps, proofs: proofs}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (s *TaskService) validateTask(in *TaskInput) error {
	var v validation
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	in.ValidationType = strings.ToLower(strings.TrimSpace(in.ValidationType))

	if n := len([]rune(in.Title)); n < 3 || n > 200 {
		v.add("title", "must be between 3 and 200 characters")
	}
	if in.Description == "" {
		v.add("description", "is required")
	}
	if !contains(model.TaskCategories(), in.Category) {
		v.add("category", "must be one of "+strings.Join(model.TaskCategories(), ", "))
	}
	if in.RewardPoints <= 0 {
		v.add("rewardPoints", "must be positive")
	}
	if _, ok := s.proofs.Get(in.ValidationType); !ok {
		v.add("validationType", "must be one of "+strings.Join(s.proofs.Types(), ", "))
	}
	for _, l := range in.Links {
		u, err := url.Parse(l)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			v.add("links", fmt.Sprintf("%q is not a valid http(s) url", l))
			break
		}
	}
	if in.Deadline != nil && !in.Deadline.After(s.now()) {
		v.add("deadline", "must be in the future")
	}
	return v.err()
}

// CreateTask publishes a new active task.
func (s *TaskService) CreateTask(ctx context.Context, adminID int64, in TaskInput) (*model.Task, error) {
	if err := s.validateTask(&in); err != nil {
		return nil, err
	}
	task, err := s.Store.Tasks().Create(ctx, &model.Task{
		Title:          in.Title,
		Description:    in.Description,
		Category:       in.Category,
		RewardPoints:   in.RewardPoints,
		ValidationType: in.ValidationType,
		Instructions:   strings.TrimSpace(in.Instructions),
		Links:          in.Links,
		Deadline:       in.Deadline,
		Status:         model.TaskStatusActive,
		CreatedBy:      adminID,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("admin_id", adminID).Int64("task_id", task.ID).Int64("reward", task.RewardPoints).Msg("Task created")
	return task, nil
}

// UpdateTask replaces the editable fields of a task.
func (s *TaskService) UpdateTask(ctx context.Context, adminID, taskID int64, in TaskInput) (*model.Task, error) {
	if err := s.validateTask(&in); err != nil {
		return nil, err
	}
	task, err := s.Store.Tasks().Update(ctx, &model.Task{
		ID:             taskID,
		Title:          in.Title,
		Description:    in.Description,
		Category:       in.Category,
		RewardPoints:   in.RewardPoints,
		ValidationType: in.ValidationType,
		Instructions:   strings.TrimSpace(in.Instructions),
		Links:          in.Links,
		Deadline:       in.Deadline,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("admin_id", adminID).Int64("task_id", taskID).Msg("Task updated")
	return task, nil
}

// SetTaskStatus activates, disables or expires a task.
func (s *TaskService) SetTaskStatus(ctx context.Context, adminID, taskID int64, status string) (*model.Task, error) {
	switch status {
	case model.TaskStatusActive, model.TaskStatusDisabled, model.TaskStatusExpired:
	default:
		return nil, fieldError("status", "must be active, disabled or expired")
	}
	task, err := s.Store.Tasks().SetStatus(ctx, taskID, status)
	if err != nil {
		return nil, err
	}
	log.Info().Int64("admin_id", adminID).Int64("task_id", taskID).Str("status", status).Msg("Task status changed")
	return task, nil
}

// GetTask returns a task regardless of its status.
func (s *TaskService) GetTask(ctx context.Context, taskID int64) (*model.Task, error) {
	return s.Store.Tasks().GetByID(ctx, taskID)
}

// ListTasks lists tasks for admins.
func (s *TaskService) ListTasks(ctx context.Context, filter repository.TaskFilter) ([]*model.Task, error) {
	tasks, err := s.Store.Tasks().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	return tasks, nil
}

func (s *TaskService) expireOverdue(ctx context.Context) {
	n, err := s.Store.Tasks().ExpireOverdue(ctx, s.now())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to expire overdue tasks")
		return
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("Expired overdue tasks")
	}
}

// userState derives the caller's progress on a task.
func userState(task *model.Task, startedAt *time.Time, latest *model.Submission) *model.UserTask {
	ut := &model.UserTask{Task: task, State: model.TaskStateAvailable, StartedAt: startedAt, Submission: latest}
	if startedAt != nil {
		ut.State = model.TaskStateStarted
	}
	if latest != nil {
		switch latest.Status {
		case model.StatusPending:
			ut.State = model.TaskStateSubmitted
		case model.StatusApproved:
			ut.State = model.TaskStateApproved
		case model.StatusRejected:
			ut.State = model.TaskStateRejected
		}
	}
	return ut
}

// ListForUser lists one page of active tasks, newest first, together with
// the caller's state on each.
func (s *TaskService) ListForUser(ctx context.Context, userID int64, category string, limit, offset int) ([]*model.UserTask, error) {
	s.expireOverdue(ctx)

	tasks, err := s.Store.Tasks().List(ctx, repository.TaskFilter{
		Status:   model.TaskStatusActive,
		Category: category,
		Limit:    repository.PageLimit(limit),
		Offset:   repository.PageOffset(offset),
	})
	if err != nil {
		return nil, err
	}
	starts, err := s.Store.Tasks().StartsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	latest, err := s.Store.Submissions().LatestByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]*model.UserTask, 0, len(tasks))
	for _, t := range tasks {
		var startedAt *time.Time
		if at, ok := starts[t.ID]; ok {
			startedAt = &at
		}
		out = append(out, userState(t, startedAt, latest[t.ID]))
	}
	return out, nil
}

// GetForUser returns one task with the caller's state. Tasks that are not
// active are hidden unless the caller has already interacted with them.
func (s *TaskService) GetForUser(ctx context.Context, userID, taskID int64) (*model.UserTask, error) {
	task, err := s.Store.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	starts, err := s.Store.Tasks().StartsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	latest, err := s.Store.Submissions().LatestByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var startedAt *time.Time
	if at, ok := starts[taskID]; ok {
		startedAt = &at
	}
	if task.Status != model.TaskStatusActive && startedAt == nil && latest[taskID] == nil {
		return nil, repository.ErrTaskNotFound
	}
	return userState(task, startedAt, latest[taskID]), nil
}

// StartTask records that the user began working on a task.
func (s *TaskService) StartTask(ctx context.Context, userID, taskID int64) (*model.UserTask, error) {
	task, err := s.Store.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !task.OpenAt(now) {
		return nil, ErrTaskUnavailable
	}

	started, err := s.Store.Tasks().Start(ctx, userID, taskID, now)
	if err != nil {
		return nil, err
	}
	if !started {
		return nil, ErrTaskAlreadyStarted
	}

	s.recordActivity(ctx, &model.Activity{
		UserID:      userID,
		Type:        model.ActivityTaskStarted,
		TaskID:      taskID,
		Title:       "Task started",
		Description: fmt.Sprintf("You started %q", task.Title),
	})
	return &model.UserTask{Task: task, State: model.TaskStateStarted, StartedAt: &now}, nil
}

// SubmitProof files a pending submission for review. Starting the task first
// is optional; submitting records the start if it is missing.
func (s *TaskService) SubmitProof(ctx context.Context, userID int64, in SubmitInput) (*SubmitResult, error) {
	task, err := s.Store.Tasks().GetByID(ctx, in.TaskID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !task.OpenAt(now) {
		return nil, ErrTaskUnavailable
	}

	if err := s.proofs.Validate(task, in.Proof); err != nil {
		var fe *proof.FieldError
		if errors.As(err, &fe) {
			return nil, fieldError(fe.Field, fe.Message)
		}
		return nil, err
	}

	done, err := s.Store.Submissions().HasApproved(ctx, userID, task.ID)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, ErrTaskAlreadyCompleted
	}

	var sub *model.Submission
	err = s.Store.InTx(ctx, func(r repository.Repositories) error {
		if _, err := r.Tasks().Start(ctx, userID, task.ID, now); err != nil {
			return err
		}
		created, err := r.Submissions().Create(ctx, &model.Submission{
			UserID:      userID,
			TaskID:      task.ID,
			ProofURLs:   in.Proof.URLs,
			ProofLink:   strings.TrimSpace(in.Proof.Link),
			Notes:       strings.TrimSpace(in.Proof.Notes),
			SubmittedAt: now,
		})
		if err != nil {
			if errors.Is(err, repository.ErrPendingSubmissionExists) {
				return ErrPendingSubmissionExists
			}
			return err
		}
		sub = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("user_id", userID).Int64("task_id", task.ID).Int64("submission_id", sub.ID).Msg("Proof submitted")
	s.recordActivity(ctx, &model.Activity{
		UserID:      userID,
		Type:        model.ActivityTaskSubmitted,
		TaskID:      task.ID,
		Title:       "Proof submitted",
		Description: fmt.Sprintf("Your proof for %q is awaiting review", task.Title),
	})
	s.notifyAdmins(ctx, userID, "submission_created", "New submission",
		fmt.Sprintf("Submission #%d for %q needs review", sub.ID, task.Title))

	return &SubmitResult{SubmissionID: sub.ID, RewardPoints: task.RewardPoints}, nil
}

// ReviewSubmission approves or rejects a pending submission. Approval flips
// the status, credits the task reward and bumps tasks_completed atomically.
func (s *TaskService) ReviewSubmission(ctx context.Context, adminID, submissionID int64, in ReviewInput) (*model.Submission, error) {
	var v validation
	reason := strings.TrimSpace(in.Reason)
	switch in.Status {
	case model.StatusApproved:
	case model.StatusRejected:
		if reason == "" {
			v.add("rejectionReason", "is required when rejecting")
		}
	default:
		v.add("status", "must be approved or rejected")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	sub, err := s.Store.Submissions().GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.StatusPending {
		return nil, ErrSubmissionAlreadyReviewed
	}
	task, err := s.Store.Tasks().GetByID(ctx, sub.TaskID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var (
		reviewed *model.Submission
		tx       *model.Transaction
	)
	err = s.withUserLock(ctx, sub.UserID, func() error {
		return s.Store.InTx(ctx, func(r repository.Repositories) error {
			locked, err := r.Submissions().GetByIDForUpdate(ctx, submissionID)
			if err != nil {
				return err
			}
			if locked.Status != model.StatusPending {
				return ErrSubmissionAlreadyReviewed
			}

			var reasonPtr *string
			var awarded *int64
			if in.Status == model.StatusApproved {
				reward := task.RewardPoints
				awarded = &reward
			} else {
				reasonPtr = &reason
			}

			reviewed, err = r.Submissions().MarkReviewed(ctx, submissionID, in.Status, adminID, reasonPtr, awarded, now)
			if err != nil {
				if errors.Is(err, repository.ErrNotPending) {
					return ErrSubmissionAlreadyReviewed
				}
				return err
			}
			if in.Status != model.StatusApproved {
				return nil
			}

			_, tx, err = post(ctx, r, sub.UserID, task.RewardPoints, model.TxTypeTaskReward,
				fmt.Sprintf("Reward for %q", task.Title), ref("submission", submissionID))
			if err != nil {
				return err
			}
			return r.Users().IncrementTasksCompleted(ctx, sub.UserID)
		})
	})
	if err != nil {
		return nil, err
	}

	observePosting(tx)
	metrics.SubmissionsReviewed.WithLabelValues(in.Status).Inc()
	log.Info().
		Int64("admin_id", adminID).
		Int64("submission_id", submissionID).
		Int64("user_id", sub.UserID).
		Str("status", in.Status).
		Msg("Submission reviewed")

	if in.Status == model.StatusApproved {
		s.recordActivity(ctx, &model.Activity{
			UserID:      sub.UserID,
			Type:        model.ActivityTaskApproved,
			TaskID:      task.ID,
			Title:       "Task approved",
			Description: fmt.Sprintf("You earned %d TP for %q", task.RewardPoints, task.Title),
			Points:      task.RewardPoints,
		})
		s.notifyUser(ctx, sub.UserID, "submission_approved", "Task approved",
			fmt.Sprintf("Your proof for %q was approved. %d TP added to your balance.", task.Title, task.RewardPoints))
	} else {
		s.recordActivity(ctx, &model.Activity{
			UserID:      sub.UserID,
			Type:        model.ActivityTaskRejected,
			TaskID:      task.ID,
			Title:       "Task rejected",
			Description: fmt.Sprintf("Your proof for %q was rejected: %s", task.Title, reason),
		})
		s.notifyUser(ctx, sub.UserID, "submission_rejected", "Task rejected",
			fmt.Sprintf("Your proof for %q was rejected: %s", task.Title, reason))
	}
	return reviewed, nil
}

// ListUserSubmissions lists the caller's submissions, newest first.
func (s *TaskService) ListUserSubmissions(ctx context.Context, userID int64, limit, offset int) ([]*model.Submission, error) {
	return s.ListSubmissions(ctx, repository.SubmissionFilter{UserID: userID, Limit: limit, Offset: offset})
}

// ListSubmissions lists submissions for admins.
func (s *TaskService) ListSubmissions(ctx context.Context, filter repository.SubmissionFilter) ([]*model.Submission, error) {
	subs, err := s.Store.Submissions().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []*model.Submission{}
	}
	return subs, nil
}
