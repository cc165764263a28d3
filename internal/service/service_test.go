package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"taskkash/internal/config"
	"taskkash/internal/docstore"
	"taskkash/internal/model"
	"taskkash/internal/pkg/lock"
	"taskkash/internal/pkg/ratelimit"
	"taskkash/internal/pkg/token"
	"taskkash/internal/proof"
	"taskkash/internal/repository/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sentMessage struct {
	userID int64
	event  string
	to     string
	body   string
}

type recordingNotifier struct {
	mu     sync.Mutex
	user   []sentMessage
	admin  []sentMessage
	emails []sentMessage
}

func (n *recordingNotifier) NotifyUser(_ context.Context, userID int64, event, _, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.user = append(n.user, sentMessage{userID: userID, event: event, body: body})
}

func (n *recordingNotifier) NotifyAdmins(_ context.Context, userID int64, event, _, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admin = append(n.admin, sentMessage{userID: userID, event: event, body: body})
}

func (n *recordingNotifier) SendEmail(_ context.Context, to, _, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, sentMessage{to: to, body: body})
}

func (n *recordingNotifier) events(list []sentMessage) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(list))
	for _, m := range list {
		out = append(out, m.event)
	}
	return out
}

const adminEmail = "boss@taskkash.test"

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:            "test-secret",
			TokenTTL:             24 * time.Hour,
			BcryptCost:           bcrypt.MinCost,
			PasswordChangeLimit:  3,
			PasswordChangeWindow: 15 * time.Minute,
			ResetTokenTTL:        time.Hour,
			ResetURL:             "https://taskkash.test/reset",
		},
		Admin:   config.AdminConfig{Emails: []string{adminEmail}},
		Rewards: config.RewardsConfig{WelcomeBonus: 50, DailyBonus: 5, StreakCycle: 7},
		Withdrawal: config.WithdrawalConfig{
			MinAmount:       500,
			USDRate:         "0.0006",
			CryptoNetworks:  []string{"TRC20", "ERC20"},
			MinWalletLength: 10,
		},
	}
}

// fixture wires every service over the in-memory stores and a fixed clock.
type fixture struct {
	store    *memory.Store
	docs     *docstore.Memory
	notifier *recordingNotifier
	clock    *clock

	ledger      *LedgerService
	auth        *AuthService
	tasks       *TaskService
	withdrawals *WithdrawalService
	admin       *AdminService
	ranking     *RankingService
	feed        *FeedService
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	cfg := testConfig()
	f := &fixture{
		store:    memory.NewStore(),
		docs:     docstore.NewMemory(),
		notifier: &recordingNotifier{},
		clock:    &clock{t: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)},
	}
	f.store.SetClock(f.clock.Now)

	deps := Deps{
		Store:      f.store,
		Locks:      lock.NewUserLock(),
		Activities: f.docs.Activities(),
		Notifier:   f.notifier,
		Now:        f.clock.Now,
	}
	f.ledger = NewLedgerService(deps, cfg.Rewards)
	limiter := ratelimit.NewMemoryLimiter(cfg.Auth.PasswordChangeLimit, cfg.Auth.PasswordChangeWindow)
	f.auth = NewAuthService(deps, f.ledger, token.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), limiter, cfg)
	f.tasks = NewTaskService(deps, proof.Default())
	ws, err := NewWithdrawalService(deps, cfg.Withdrawal)
	require.NoError(t, err)
	f.withdrawals = ws
	f.admin = NewAdminService(deps)
	f.ranking = NewRankingService(deps)
	f.feed = NewFeedService(f.docs.Activities(), f.docs.Notifications(), f.docs.AdminNotifications())
	return f
}

// register signs up a user through the auth service.
func (f *fixture) register(t testing.TB, name, email string) *model.User {
	t.Helper()
	sess, err := f.auth.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: "password123"})
	require.NoError(t, err)
	return sess.User
}

// fund credits points through the ledger.
func (f *fixture) fund(t testing.TB, userID, amount int64) {
	t.Helper()
	_, err := f.ledger.Post(context.Background(), userID, amount, model.TxTypeAdminAdjustment, "test funding")
	require.NoError(t, err)
}

func (f *fixture) balance(t testing.TB, userID int64) int64 {
	t.Helper()
	u, err := f.store.Users().GetByID(context.Background(), userID)
	require.NoError(t, err)
	return u.TaskPoints
}

func (f *fixture) createTask(t testing.TB, reward int64, validation string, links ...string) *model.Task {
	t.Helper()
	task, err := f.tasks.CreateTask(context.Background(), 1, TaskInput{
		Title:          "Follow us",
		Description:    "Follow the account and stay followed",
		Category:       model.CategorySocial,
		RewardPoints:   reward,
		ValidationType: validation,
		Links:          links,
	})
	require.NoError(t, err)
	return task
}

// assertLedgerMatches checks that the stored balance equals the ledger sum.
func (f *fixture) assertLedgerMatches(t testing.TB, userID int64) {
	t.Helper()
	summary, err := f.ledger.Reconcile(context.Background(), userID)
	require.NoError(t, err)
	require.Zero(t, summary.Drift, "balance %d != ledger sum %d", summary.Balance, summary.LedgerSum)
}
