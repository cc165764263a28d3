package handler

import (
	"net/http"
	"strconv"

	"taskkash/internal/repository"
	"taskkash/internal/service"
)

// AdminHandler serves moderation endpoints. Every route sits behind
// RequireAuth and RequireAdmin.
type AdminHandler struct {
	admin       *service.AdminService
	ledger      *service.LedgerService
	tasks       *service.TaskService
	withdrawals *service.WithdrawalService
	feed        *service.FeedService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	admin *service.AdminService,
	ledger *service.LedgerService,
	tasks *service.TaskService,
	withdrawals *service.WithdrawalService,
	feed *service.FeedService,
) *AdminHandler {
	return &AdminHandler{
		admin:       admin,
		ledger:      ledger,
		tasks:       tasks,
		withdrawals: withdrawals,
		feed:        feed,
	}
}

// Dashboard handles GET /api/admin/dashboard.
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.admin.Dashboard(r.Context())
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", dash)
}

// ListUsers handles GET /api/admin/users?search=&status=.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	q := r.URL.Query()
	users, err := h.admin.ListUsers(r.Context(), repository.UserFilter{
		Search: q.Get("search"),
		Status: q.Get("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", users)
}

// GetUser handles GET /api/admin/users/{id}.
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		Error(w, r, err)
		return
	}
	user, err := h.admin.GetUser(r.Context(), id)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", user)
}

// SetUserStatus handles PATCH /api/admin/users/{id}/status.
func (h *AdminHandler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		Error(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	user, err := h.admin.SetUserStatus(r.Context(), admin.ID, id, req.Status)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "user status updated", user)
}

// AdjustPoints handles POST /api/admin/users/{id}/points.
func (h *AdminHandler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		Error(w, r, err)
		return
	}
	var req adjustPointsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	tx, err := h.ledger.AdminAdjust(r.Context(), admin.ID, id, req.Amount, req.Reason)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "balance adjusted", tx)
}

// Reconcile handles GET /api/admin/users/{id}/reconcile.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		Error(w, r, err)
		return
	}
	summary, err := h.ledger.Reconcile(r.Context(), id)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", summary)
}

// ListTasks handles GET /api/admin/tasks?status=&category=.
func (h *AdminHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	q := r.URL.Query()
	tasks, err := h.tasks.ListTasks(r.Context(), repository.TaskFilter{
		Status:   q.Get("status"),
		Category: q.Get("category"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", tasks)
}

// CreateTask handles POST /api/admin/tasks.
func (h *AdminHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	task, err := h.tasks.CreateTask(r.Context(), admin.ID, req.input())
	if err != nil {
		Error(w, r, err)
		return
	}
	Created(w, "task created", task)
}

// UpdateTask handles PUT /api/admin/tasks/{id}.
func (h *AdminHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		Error(w, r, err)
		return
	}
	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	task, err := h.tasks.UpdateTask(r.Context(), admin.ID, id, req.input())
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "task updated", task)
}

// SetTaskStatus handles PATCH /api/admin/tasks/{id}/status.
func (h *AdminHandler) SetTaskStatus(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		Error(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	task, err := h.tasks.SetTaskStatus(r.Context(), admin.ID, id, req.Status)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "task status updated", task)
}

func queryInt64(r *http.Request, key string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return v
}

// ListSubmissions handles GET /api/admin/submissions?status=&userId=&taskId=.
func (h *AdminHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	subs, err := h.tasks.ListSubmissions(r.Context(), repository.SubmissionFilter{
		Status: r.URL.Query().Get("status"),
		UserID: queryInt64(r, "userId"),
		TaskID: queryInt64(r, "taskId"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", subs)
}

// ReviewSubmission handles POST /api/admin/submissions/{id}/review.
func (h *AdminHandler) ReviewSubmission(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		Error(w, r, err)
		return
	}
	var req reviewSubmissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	sub, err := h.tasks.ReviewSubmission(r.Context(), admin.ID, id, service.ReviewInput{
		Status: req.Status,
		Reason: req.RejectionReason,
	})
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "submission "+sub.Status, sub)
}

// ListWithdrawals handles GET /api/admin/withdrawals?status=&userId=.
func (h *AdminHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	ws, err := h.withdrawals.ListWithdrawals(r.Context(), repository.WithdrawalFilter{
		Status: r.URL.Query().Get("status"),
		UserID: queryInt64(r, "userId"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", ws)
}

// ReviewWithdrawal handles POST /api/admin/withdrawals/{id}/review.
func (h *AdminHandler) ReviewWithdrawal(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		Error(w, r, err)
		return
	}
	var req reviewWithdrawalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	wd, err := h.withdrawals.ReviewWithdrawal(r.Context(), admin.ID, id, req.Status)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "withdrawal "+wd.Status, wd)
}

// Notifications handles GET /api/admin/notifications?unread=true.
func (h *AdminHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	items, err := h.feed.AdminNotifications(r.Context(), unread, limit, offset)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", items)
}

// MarkNotificationsRead handles POST /api/admin/notifications/read.
func (h *AdminHandler) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	n, err := h.feed.MarkAdminNotificationsRead(r.Context(), req.IDs)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", map[string]int64{"updated": n})
}
