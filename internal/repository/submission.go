package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"taskkash/internal/model"
)

const submissionColumns = `id, user_id, task_id, status, proof_urls, proof_link, notes,
	submitted_at, reviewed_at, reviewed_by, rejection_reason, awarded_points`

// SubmissionRepository handles proof submission persistence.
type SubmissionRepository struct {
	db DBTX
}

// NewSubmissionRepository creates a new SubmissionRepository instance.
func NewSubmissionRepository(db DBTX) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	var s model.Submission
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.TaskID,
		&s.Status,
		&s.ProofURLs,
		&s.ProofLink,
		&s.Notes,
		&s.SubmittedAt,
		&s.ReviewedAt,
		&s.ReviewedBy,
		&s.RejectionReason,
		&s.AwardedPoints,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSubmissions(rows pgx.Rows) ([]*model.Submission, error) {
	defer rows.Close()

	var subs []*model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submissions: %w", err)
	}
	return subs, nil
}

// Create inserts a pending submission.
// Returns ErrPendingSubmissionExists if the user already has one pending for the task.
func (r *SubmissionRepository) Create(ctx context.Context, sub *model.Submission) (*model.Submission, error) {
	query := `
		INSERT INTO submissions (user_id, task_id, status, proof_urls, proof_link, notes, submitted_at)
		VALUES ($1, $2, 'pending', $3, $4, $5, $6)
		RETURNING ` + submissionColumns

	s, err := scanSubmission(r.db.QueryRow(ctx, query,
		sub.UserID, sub.TaskID, nonNilStrings(sub.ProofURLs), sub.ProofLink, sub.Notes, sub.SubmittedAt,
	))
	if err != nil {
		if code, constraint := pgErrorCode(err); code == pgUniqueViolation && constraint == "uq_submissions_pending" {
			return nil, ErrPendingSubmissionExists
		}
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}
	return s, nil
}

// GetByID retrieves a submission by ID.
func (r *SubmissionRepository) GetByID(ctx context.Context, id int64) (*model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`

	s, err := scanSubmission(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, ErrSubmissionNotFound, "submission")
	}
	return s, nil
}

// GetByIDForUpdate retrieves a submission and locks the row.
func (r *SubmissionRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1 FOR UPDATE`

	s, err := scanSubmission(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, ErrSubmissionNotFound, "submission")
	}
	return s, nil
}

// MarkReviewed moves a pending submission to its final status.
// Returns ErrNotPending if the submission was already reviewed.
func (r *SubmissionRepository) MarkReviewed(ctx context.Context, id int64, status string, reviewerID int64, reason *string, awarded *int64, at time.Time) (*model.Submission, error) {
	query := `
		UPDATE submissions
		SET status = $2, reviewed_by = $3, rejection_reason = $4, awarded_points = $5, reviewed_at = $6
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + submissionColumns

	s, err := scanSubmission(r.db.QueryRow(ctx, query, id, status, reviewerID, reason, awarded, at))
	if err != nil {
		return nil, notFound(err, ErrNotPending, "submission")
	}
	return s, nil
}

// HasApproved reports whether the user already has an approved submission for the task.
func (r *SubmissionRepository) HasApproved(ctx context.Context, userID, taskID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM submissions WHERE user_id = $1 AND task_id = $2 AND status = 'approved')`

	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, taskID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check approved submission: %w", err)
	}
	return exists, nil
}

// LatestByUser maps task ID to the user's most recent submission for it.
func (r *SubmissionRepository) LatestByUser(ctx context.Context, userID int64) (map[int64]*model.Submission, error) {
	query := `
		SELECT DISTINCT ON (task_id) ` + submissionColumns + `
		FROM submissions
		WHERE user_id = $1
		ORDER BY task_id, submitted_at DESC, id DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest submissions: %w", err)
	}
	subs, err := collectSubmissions(rows)
	if err != nil {
		return nil, err
	}

	latest := make(map[int64]*model.Submission, len(subs))
	for _, s := range subs {
		latest[s.TaskID] = s
	}
	return latest, nil
}

// List returns submissions newest first.
func (r *SubmissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]*model.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM submissions
		WHERE ($1 = '' OR status = $1)
		  AND ($2::bigint = 0 OR user_id = $2)
		  AND ($3::bigint = 0 OR task_id = $3)
		ORDER BY submitted_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`

	rows, err := r.db.Query(ctx, query,
		filter.Status, filter.UserID, filter.TaskID, PageLimit(filter.Limit), PageOffset(filter.Offset),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return collectSubmissions(rows)
}

// CountByStatus counts submissions in one status.
func (r *SubmissionRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM submissions WHERE status = $1`, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return n, nil
}
