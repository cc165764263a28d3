// Package model defines the data models for TaskKash.
package model

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a platform account and its running point balance.
type User struct {
	ID                  int64      `db:"id" json:"id"`
	Name                string     `db:"name" json:"name"`
	Email               string     `db:"email" json:"email"`
	PasswordHash        string     `db:"password_hash" json:"-"`
	Role                string     `db:"role" json:"role"`
	Status              string     `db:"status" json:"status"`
	TaskPoints          int64      `db:"task_points" json:"taskPoints"`
	TasksCompleted      int64      `db:"tasks_completed" json:"tasksCompleted"`
	DailyStreak         int        `db:"daily_streak" json:"dailyStreak"`
	LastStreakDate      *time.Time `db:"last_streak_date" json:"lastStreakDate,omitempty"`
	LastDailyBonusOn    *time.Time `db:"last_daily_bonus_on" json:"lastDailyBonusOn,omitempty"`
	WelcomeBonusGranted bool       `db:"welcome_bonus_granted" json:"welcomeBonusGranted"`
	LastLoginAt         *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updatedAt"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// Transaction is one immutable ledger entry.
type Transaction struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"userId"`
	Amount      int64     `db:"amount" json:"amount"`
	Type        string    `db:"type" json:"type"`
	Description string    `db:"description" json:"description"`
	Reference   string    `db:"reference" json:"reference,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Task is an admin-authored unit of work that pays RewardPoints on approval.
type Task struct {
	ID             int64      `db:"id" json:"id"`
	Title          string     `db:"title" json:"title"`
	Description    string     `db:"description" json:"description"`
	Category       string     `db:"category" json:"category"`
	RewardPoints   int64      `db:"reward_points" json:"rewardPoints"`
	ValidationType string     `db:"validation_type" json:"validationType"`
	Instructions   string     `db:"instructions" json:"instructions"`
	Links          []string   `db:"links" json:"links"`
	Deadline       *time.Time `db:"deadline" json:"deadline,omitempty"`
	Status         string     `db:"status" json:"status"`
	CreatedBy      int64      `db:"created_by" json:"createdBy"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

// OpenAt reports whether users can start or submit the task at t.
func (t *Task) OpenAt(now time.Time) bool {
	if t.Status != TaskStatusActive {
		return false
	}
	return t.Deadline == nil || now.Before(*t.Deadline)
}

// Proof is the evidence attached to a submission.
type Proof struct {
	URLs  []string `json:"proofUrls"`
	Link  string   `json:"proofLink"`
	Notes string   `json:"notes"`
}

// Submission is one user's attempt at one task.
type Submission struct {
	ID              int64      `db:"id" json:"id"`
	UserID          int64      `db:"user_id" json:"userId"`
	TaskID          int64      `db:"task_id" json:"taskId"`
	Status          string     `db:"status" json:"status"`
	ProofURLs       []string   `db:"proof_urls" json:"proofUrls"`
	ProofLink       string     `db:"proof_link" json:"proofLink"`
	Notes           string     `db:"notes" json:"notes"`
	SubmittedAt     time.Time  `db:"submitted_at" json:"submittedAt"`
	ReviewedAt      *time.Time `db:"reviewed_at" json:"reviewedAt,omitempty"`
	ReviewedBy      *int64     `db:"reviewed_by" json:"reviewedBy,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejectionReason,omitempty"`
	AwardedPoints   *int64     `db:"awarded_points" json:"awardedPoints,omitempty"`
}

// UserTask is a task together with the caller's progress on it.
type UserTask struct {
	Task       *Task       `json:"task"`
	State      string      `json:"state"`
	StartedAt  *time.Time  `json:"startedAt,omitempty"`
	Submission *Submission `json:"submission,omitempty"`
}

// Withdrawal is a payout request debited from the user's balance at creation.
type Withdrawal struct {
	ID              int64           `db:"id" json:"id"`
	UserID          int64           `db:"user_id" json:"userId"`
	Amount          int64           `db:"amount" json:"amount"`
	ConvertedAmount decimal.Decimal `db:"converted_amount" json:"convertedAmount"`
	Type            string          `db:"type" json:"withdrawalType"`
	Status          string          `db:"status" json:"status"`
	BankName        string          `db:"bank_name" json:"bankName,omitempty"`
	AccountName     string          `db:"account_name" json:"accountName,omitempty"`
	AccountNumber   string          `db:"account_number" json:"accountNumber,omitempty"`
	Network         string          `db:"network" json:"network,omitempty"`
	WalletAddress   string          `db:"wallet_address" json:"walletAddress,omitempty"`
	ReviewedBy      *int64          `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time      `db:"reviewed_at" json:"reviewedAt,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// Activity is an audit trail entry shown in the user's feed.
type Activity struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      int64              `bson:"user_id" json:"userId"`
	Type        string             `bson:"type" json:"type"`
	TaskID      int64              `bson:"task_id,omitempty" json:"taskId,omitempty"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description" json:"description"`
	Points      int64              `bson:"points,omitempty" json:"points,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`
}

// Notification is a message addressed to a single user.
type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    int64              `bson:"user_id" json:"userId"`
	Kind      string             `bson:"kind" json:"kind"`
	Title     string             `bson:"title" json:"title"`
	Body      string             `bson:"body" json:"body"`
	Read      bool               `bson:"read" json:"read"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}

// AdminNotification is a message addressed to all admins.
type AdminNotification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind      string             `bson:"kind" json:"kind"`
	Title     string             `bson:"title" json:"title"`
	Body      string             `bson:"body" json:"body"`
	UserID    int64              `bson:"user_id,omitempty" json:"userId,omitempty"`
	Read      bool               `bson:"read" json:"read"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}

// DailyRank represents a user's task earnings for one UTC day.
type DailyRank struct {
	UserID int64  `db:"user_id" json:"userId"`
	Name   string `db:"name" json:"name"`
	Earned int64  `db:"earned" json:"earned"`
}

// LedgerSummary compares the stored balance with the sum of the ledger.
type LedgerSummary struct {
	UserID    int64 `json:"userId"`
	Balance   int64 `json:"balance"`
	LedgerSum int64 `json:"ledgerSum"`
	Drift     int64 `json:"drift"`
}

// Dashboard holds the admin overview counters.
type Dashboard struct {
	Users              int64 `json:"users"`
	PendingSubmissions int64 `json:"pendingSubmissions"`
	PendingWithdrawals int64 `json:"pendingWithdrawals"`
	PointsOutstanding  int64 `json:"pointsOutstanding"`
}

// Roles and account statuses.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
)

// Transaction types for categorizing balance changes.
const (
	TxTypeWelcomeBonus     = "welcome_bonus"
	TxTypeDailyLogin       = "daily_login"
	TxTypeTaskReward       = "task_reward"
	TxTypeWithdrawal       = "withdrawal"
	TxTypeWithdrawalRefund = "withdrawal_refund"
	TxTypeAdminAdjustment  = "admin_adjustment"
)

// Task categories, validation types and statuses.
const (
	CategorySocial   = "social"
	CategoryContent  = "content"
	CategoryCommerce = "commerce"
	CategoryOther    = "other"

	ValidationManual     = "manual"
	ValidationScreenshot = "screenshot"
	ValidationLink       = "link"

	TaskStatusActive   = "active"
	TaskStatusExpired  = "expired"
	TaskStatusDisabled = "disabled"
)

// Per-user task states.
const (
	TaskStateAvailable = "available"
	TaskStateStarted   = "started"
	TaskStateSubmitted = "submitted"
	TaskStateApproved  = "approved"
	TaskStateRejected  = "rejected"
)

// Review statuses shared by submissions and withdrawals.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Withdrawal methods.
const (
	WithdrawalBank   = "bank"
	WithdrawalCrypto = "crypto"
)

// Activity types.
const (
	ActivityTaskStarted        = "task_started"
	ActivityTaskSubmitted      = "task_submitted"
	ActivityTaskApproved       = "task_approved"
	ActivityTaskRejected       = "task_rejected"
	ActivityBonus              = "bonus"
	ActivityProfileUpdate      = "profile_update"
	ActivityWithdrawalRequest  = "withdrawal_requested"
	ActivityWithdrawalApproved = "withdrawal_approved"
	ActivityWithdrawalRejected = "withdrawal_rejected"
)

// TaskCategories returns the accepted task categories.
func TaskCategories() []string {
	return []string{CategorySocial, CategoryContent, CategoryCommerce, CategoryOther}
}
