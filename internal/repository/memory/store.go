// Package memory provides an in-process repository.Store. It enforces the
// same constraints as the PostgreSQL schema (unique email, non-negative
// balance, one pending submission per user and task, one start per user and
// task) and rolls back every change made inside a failed InTx.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"taskkash/internal/model"
	"taskkash/internal/repository"
)

type startKey struct{ userID, taskID int64 }

type resetToken struct {
	userID    int64
	expiresAt time.Time
	used      bool
}

type state struct {
	users       map[int64]*model.User
	txs         []*model.Transaction
	tasks       map[int64]*model.Task
	starts      map[startKey]time.Time
	submissions map[int64]*model.Submission
	withdrawals map[int64]*model.Withdrawal
	resets      map[string]*resetToken
	seq         int64
}

func newState() *state {
	return &state{
		users:       make(map[int64]*model.User),
		tasks:       make(map[int64]*model.Task),
		starts:      make(map[startKey]time.Time),
		submissions: make(map[int64]*model.Submission),
		withdrawals: make(map[int64]*model.Withdrawal),
		resets:      make(map[string]*resetToken),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = copyUser(v)
	}
	c.txs = make([]*model.Transaction, len(s.txs))
	for i, v := range s.txs {
		tx := *v
		c.txs[i] = &tx
	}
	for k, v := range s.tasks {
		c.tasks[k] = copyTask(v)
	}
	for k, v := range s.starts {
		c.starts[k] = v
	}
	for k, v := range s.submissions {
		c.submissions[k] = copySubmission(v)
	}
	for k, v := range s.withdrawals {
		w := *v
		c.withdrawals[k] = &w
	}
	for k, v := range s.resets {
		r := *v
		c.resets[k] = &r
	}
	c.seq = s.seq
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// Store is an in-memory repository.Store.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data *state
	now  func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{data: newState(), now: time.Now}
}

// SetClock replaces the clock used for created_at style timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// InTx serializes transactions and restores the pre-transaction state when
// fn returns an error.
func (s *Store) InTx(ctx context.Context, fn func(repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Users() repository.UserStore               { return (*userStore)(s) }
func (s *Store) Transactions() repository.TransactionStore { return (*txStore)(s) }
func (s *Store) Tasks() repository.TaskStore               { return (*taskStore)(s) }
func (s *Store) Submissions() repository.SubmissionStore   { return (*submissionStore)(s) }
func (s *Store) Withdrawals() repository.WithdrawalStore   { return (*withdrawalStore)(s) }
func (s *Store) ResetTokens() repository.ResetTokenStore   { return (*resetStore)(s) }

func copyUser(u *model.User) *model.User {
	c := *u
	return &c
}

func copyTask(t *model.Task) *model.Task {
	c := *t
	c.Links = append([]string(nil), t.Links...)
	return &c
}

func copySubmission(sub *model.Submission) *model.Submission {
	c := *sub
	c.ProofURLs = append([]string(nil), sub.ProofURLs...)
	return &c
}

func copyWithdrawal(w *model.Withdrawal) *model.Withdrawal {
	c := *w
	return &c
}

func page[T any](items []T, limit, offset int) []T {
	limit = repository.PageLimit(limit)
	offset = repository.PageOffset(offset)
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func sameDay(a *time.Time, b time.Time) bool {
	if a == nil {
		return false
	}
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func dateOnly(t time.Time) *time.Time {
	y, m, d := t.UTC().Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &day
}

// userStore implements repository.UserStore.
type userStore Store

func (r *userStore) Create(_ context.Context, name, email, passwordHash, role string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email = strings.ToLower(email)
	for _, u := range r.data.users {
		if u.Email == email {
			return nil, repository.ErrDuplicateEmail
		}
	}
	now := r.now()
	u := &model.User{
		ID:           r.data.nextID(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		Status:       model.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.data.users[u.ID] = u
	return copyUser(u), nil
}

func (r *userStore) get(id int64) (*model.User, error) {
	u, ok := r.data.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (r *userStore) GetByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return copyUser(u), nil
}

func (r *userStore) GetByIDForUpdate(ctx context.Context, id int64) (*model.User, error) {
	return r.GetByID(ctx, id)
}

func (r *userStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(email)
	for _, u := range r.data.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *userStore) AddPoints(_ context.Context, id int64, delta int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if u.TaskPoints+delta < 0 {
		return nil, repository.ErrNegativeBalance
	}
	u.TaskPoints += delta
	u.UpdatedAt = r.now()
	return copyUser(u), nil
}

func (r *userStore) IncrementTasksCompleted(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.get(id)
	if err != nil {
		return err
	}
	u.TasksCompleted++
	return nil
}

func (r *userStore) MarkWelcomeBonus(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.data.users[id]
	if !ok || u.WelcomeBonusGranted {
		return false, nil
	}
	u.WelcomeBonusGranted = true
	return true, nil
}

func (r *userStore) MarkDailyBonus(_ context.Context, id int64, day time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.data.users[id]
	if !ok || sameDay(u.LastDailyBonusOn, day) {
		return false, nil
	}
	u.LastDailyBonusOn = dateOnly(day)
	return true, nil
}

func (r *userStore) UpdateStreak(_ context.Context, id int64, streak int, day time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.get(id)
	if err != nil {
		return err
	}
	u.DailyStreak = streak
	u.LastStreakDate = dateOnly(day)
	return nil
}

func (r *userStore) TouchLogin(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.get(id)
	if err != nil {
		return err
	}
	u.LastLoginAt = &at
	return nil
}

func (r *userStore) UpdateName(_ context.Context, id int64, name string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.get(id)
	if err != nil {
		return nil, err
	}
	u.Name = name
	return copyUser(u), nil
}

func (r *userStore) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.get(id)
	if err != nil {
		return err
	}
	u.PasswordHash = passwordHash
	return nil
}

func (r *userStore) SetStatus(_ context.Context, id int64, status string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.get(id)
	if err != nil {
		return nil, err
	}
	u.Status = status
	return copyUser(u), nil
}

func (r *userStore) sorted(less func(a, b *model.User) bool, keep func(*model.User) bool) []*model.User {
	var out []*model.User
	for _, u := range r.data.users {
		if keep(u) {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (r *userStore) List(_ context.Context, filter repository.UserFilter) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	search := strings.ToLower(filter.Search)
	users := r.sorted(
		func(a, b *model.User) bool { return a.ID > b.ID },
		func(u *model.User) bool {
			if filter.Status != "" && u.Status != filter.Status {
				return false
			}
			return search == "" ||
				strings.Contains(strings.ToLower(u.Name), search) ||
				strings.Contains(u.Email, search)
		},
	)
	return page(users, filter.Limit, filter.Offset), nil
}

func (r *userStore) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.data.users)), nil
}

func (r *userStore) TotalPoints(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, u := range r.data.users {
		total += u.TaskPoints
	}
	return total, nil
}

func isActive(u *model.User) bool { return u.Status == model.UserStatusActive }

func (r *userStore) TopByPoints(_ context.Context, limit int) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := r.sorted(func(a, b *model.User) bool {
		if a.TaskPoints != b.TaskPoints {
			return a.TaskPoints > b.TaskPoints
		}
		return a.ID < b.ID
	}, isActive)
	return page(users, limit, 0), nil
}

func (r *userStore) TopByTasksCompleted(_ context.Context, limit int) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := r.sorted(func(a, b *model.User) bool {
		if a.TasksCompleted != b.TasksCompleted {
			return a.TasksCompleted > b.TasksCompleted
		}
		return a.ID < b.ID
	}, isActive)
	return page(users, limit, 0), nil
}

// txStore implements repository.TransactionStore.
type txStore Store

func (r *txStore) Create(_ context.Context, tx *model.Transaction) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data.users[tx.UserID]; !ok {
		return nil, repository.ErrUserNotFound
	}
	c := *tx
	c.ID = r.data.nextID()
	c.CreatedAt = r.now()
	r.data.txs = append(r.data.txs, &c)
	out := c
	return &out, nil
}

func (r *txStore) ListByUser(_ context.Context, userID int64, limit, offset int) ([]*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Transaction
	for i := len(r.data.txs) - 1; i >= 0; i-- {
		if tx := r.data.txs[i]; tx.UserID == userID {
			c := *tx
			out = append(out, &c)
		}
	}
	return page(out, limit, offset), nil
}

func (r *txStore) SumByUser(_ context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, tx := range r.data.txs {
		if tx.UserID == userID {
			sum += tx.Amount
		}
	}
	return sum, nil
}

func (r *txStore) CountByUserAndType(_ context.Context, userID int64, txType string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, tx := range r.data.txs {
		if tx.UserID == userID && tx.Type == txType {
			n++
		}
	}
	return n, nil
}

func (r *txStore) DailyEarners(_ context.Context, day time.Time, limit int) ([]*model.DailyRank, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	earned := make(map[int64]int64)
	for _, tx := range r.data.txs {
		if tx.Type == model.TxTypeTaskReward && sameDay(&tx.CreatedAt, day) {
			earned[tx.UserID] += tx.Amount
		}
	}
	ranks := make([]*model.DailyRank, 0, len(earned))
	for userID, amount := range earned {
		name := ""
		if u, ok := r.data.users[userID]; ok {
			name = u.Name
		}
		ranks = append(ranks, &model.DailyRank{UserID: userID, Name: name, Earned: amount})
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Earned != ranks[j].Earned {
			return ranks[i].Earned > ranks[j].Earned
		}
		return ranks[i].UserID < ranks[j].UserID
	})
	return page(ranks, limit, 0), nil
}

// taskStore implements repository.TaskStore.
type taskStore Store

func (r *taskStore) Create(_ context.Context, task *model.Task) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := copyTask(task)
	c.ID = r.data.nextID()
	c.CreatedAt = r.now()
	c.UpdatedAt = c.CreatedAt
	r.data.tasks[c.ID] = c
	return copyTask(c), nil
}

func (r *taskStore) Update(_ context.Context, task *model.Task) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data.tasks[task.ID]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	t.Title = task.Title
	t.Description = task.Description
	t.Category = task.Category
	t.RewardPoints = task.RewardPoints
	t.ValidationType = task.ValidationType
	t.Instructions = task.Instructions
	t.Links = append([]string(nil), task.Links...)
	t.Deadline = task.Deadline
	t.UpdatedAt = r.now()
	return copyTask(t), nil
}

func (r *taskStore) GetByID(_ context.Context, id int64) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data.tasks[id]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	return copyTask(t), nil
}

func (r *taskStore) SetStatus(_ context.Context, id int64, status string) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data.tasks[id]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	t.Status = status
	t.UpdatedAt = r.now()
	return copyTask(t), nil
}

func (r *taskStore) List(_ context.Context, filter repository.TaskFilter) ([]*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Task
	for _, t := range r.data.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Category != "" && t.Category != filter.Category {
			continue
		}
		out = append(out, copyTask(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *taskStore) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.data.tasks {
		if t.Status == model.TaskStatusActive && t.Deadline != nil && !t.Deadline.After(now) {
			t.Status = model.TaskStatusExpired
			n++
		}
	}
	return n, nil
}

func (r *taskStore) Start(_ context.Context, userID, taskID int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := startKey{userID, taskID}
	if _, ok := r.data.starts[key]; ok {
		return false, nil
	}
	r.data.starts[key] = at
	return true, nil
}

func (r *taskStore) StartsByUser(_ context.Context, userID int64) (map[int64]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]time.Time)
	for k, at := range r.data.starts {
		if k.userID == userID {
			out[k.taskID] = at
		}
	}
	return out, nil
}

// submissionStore implements repository.SubmissionStore.
type submissionStore Store

func (r *submissionStore) Create(_ context.Context, sub *model.Submission) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.data.submissions {
		if s.UserID == sub.UserID && s.TaskID == sub.TaskID && s.Status == model.StatusPending {
			return nil, repository.ErrPendingSubmissionExists
		}
	}
	c := copySubmission(sub)
	c.ID = r.data.nextID()
	c.Status = model.StatusPending
	r.data.submissions[c.ID] = c
	return copySubmission(c), nil
}

func (r *submissionStore) GetByID(_ context.Context, id int64) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data.submissions[id]
	if !ok {
		return nil, repository.ErrSubmissionNotFound
	}
	return copySubmission(s), nil
}

func (r *submissionStore) GetByIDForUpdate(ctx context.Context, id int64) (*model.Submission, error) {
	return r.GetByID(ctx, id)
}

func (r *submissionStore) MarkReviewed(_ context.Context, id int64, status string, reviewerID int64, reason *string, awarded *int64, at time.Time) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data.submissions[id]
	if !ok || s.Status != model.StatusPending {
		return nil, repository.ErrNotPending
	}
	s.Status = status
	s.ReviewedBy = &reviewerID
	s.RejectionReason = reason
	s.AwardedPoints = awarded
	s.ReviewedAt = &at
	return copySubmission(s), nil
}

func (r *submissionStore) HasApproved(_ context.Context, userID, taskID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.data.submissions {
		if s.UserID == userID && s.TaskID == taskID && s.Status == model.StatusApproved {
			return true, nil
		}
	}
	return false, nil
}

func (r *submissionStore) LatestByUser(_ context.Context, userID int64) (map[int64]*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest := make(map[int64]*model.Submission)
	for _, s := range r.data.submissions {
		if s.UserID != userID {
			continue
		}
		if cur, ok := latest[s.TaskID]; !ok || s.ID > cur.ID {
			latest[s.TaskID] = copySubmission(s)
		}
	}
	return latest, nil
}

func (r *submissionStore) List(_ context.Context, filter repository.SubmissionFilter) ([]*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Submission
	for _, s := range r.data.submissions {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.UserID != 0 && s.UserID != filter.UserID {
			continue
		}
		if filter.TaskID != 0 && s.TaskID != filter.TaskID {
			continue
		}
		out = append(out, copySubmission(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *submissionStore) CountByStatus(_ context.Context, status string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.data.submissions {
		if s.Status == status {
			n++
		}
	}
	return n, nil
}

// withdrawalStore implements repository.WithdrawalStore.
type withdrawalStore Store

func (r *withdrawalStore) Create(_ context.Context, w *model.Withdrawal) (*model.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := copyWithdrawal(w)
	c.ID = r.data.nextID()
	c.Status = model.StatusPending
	c.CreatedAt = r.now()
	c.UpdatedAt = c.CreatedAt
	r.data.withdrawals[c.ID] = c
	return copyWithdrawal(c), nil
}

func (r *withdrawalStore) GetByID(_ context.Context, id int64) (*model.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.data.withdrawals[id]
	if !ok {
		return nil, repository.ErrWithdrawalNotFound
	}
	return copyWithdrawal(w), nil
}

func (r *withdrawalStore) GetByIDForUpdate(ctx context.Context, id int64) (*model.Withdrawal, error) {
	return r.GetByID(ctx, id)
}

func (r *withdrawalStore) MarkReviewed(_ context.Context, id int64, status string, reviewerID int64, at time.Time) (*model.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.data.withdrawals[id]
	if !ok || w.Status != model.StatusPending {
		return nil, repository.ErrNotPending
	}
	w.Status = status
	w.ReviewedBy = &reviewerID
	w.ReviewedAt = &at
	w.UpdatedAt = r.now()
	return copyWithdrawal(w), nil
}

func (r *withdrawalStore) List(_ context.Context, filter repository.WithdrawalFilter) ([]*model.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Withdrawal
	for _, w := range r.data.withdrawals {
		if filter.Status != "" && w.Status != filter.Status {
			continue
		}
		if filter.UserID != 0 && w.UserID != filter.UserID {
			continue
		}
		out = append(out, copyWithdrawal(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *withdrawalStore) CountByStatus(_ context.Context, status string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, w := range r.data.withdrawals {
		if w.Status == status {
			n++
		}
	}
	return n, nil
}

// resetStore implements repository.ResetTokenStore.
type resetStore Store

func (r *resetStore) Create(_ context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.resets[tokenHash] = &resetToken{userID: userID, expiresAt: expiresAt}
	return nil
}

func (r *resetStore) Consume(_ context.Context, tokenHash string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data.resets[tokenHash]
	if !ok || t.used || !now.Before(t.expiresAt) {
		return 0, repository.ErrTokenInvalid
	}
	t.used = true
	return t.userID, nil
}

var _ repository.Store = (*Store)(nil)
