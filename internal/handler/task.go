package handler

import (
	"net/http"

	"taskkash/internal/service"
)

// TaskHandler serves the user side of the task lifecycle.
type TaskHandler struct {
	tasks *service.TaskService
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// List handles GET /api/tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, offset := page(r)
	tasks, err := h.tasks.ListForUser(r.Context(), u.ID, r.URL.Query().Get("category"), limit, offset)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", tasks)
}

// Get handles GET /api/tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		Error(w, r, err)
		return
	}
	task, err := h.tasks.GetForUser(r.Context(), u.ID, id)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", task)
}

// Start handles POST /api/tasks/{id}/start.
func (h *TaskHandler) Start(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		Error(w, r, err)
		return
	}
	task, err := h.tasks.StartTask(r.Context(), u.ID, id)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "task started", task)
}

// Submit handles POST /api/submissions.
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req submitProofRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	res, err := h.tasks.SubmitProof(r.Context(), u.ID, req.input())
	if err != nil {
		Error(w, r, err)
		return
	}
	Created(w, "submission received and pending review", res)
}

// Submissions handles GET /api/submissions.
func (h *TaskHandler) Submissions(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, offset := page(r)
	subs, err := h.tasks.ListUserSubmissions(r.Context(), u.ID, limit, offset)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", subs)
}
