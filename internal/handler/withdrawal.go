package handler

import (
	"net/http"

	"taskkash/internal/service"
)

// WithdrawalHandler serves payout requests.
type WithdrawalHandler struct {
	withdrawals *service.WithdrawalService
}

// NewWithdrawalHandler creates a new WithdrawalHandler.
func NewWithdrawalHandler(withdrawals *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals}
}

// Create handles POST /api/withdrawals.
func (h *WithdrawalHandler) Create(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req withdrawalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	wd, err := h.withdrawals.RequestWithdrawal(r.Context(), u.ID, req.input())
	if err != nil {
		Error(w, r, err)
		return
	}
	Created(w, "withdrawal requested", wd)
}

// List handles GET /api/withdrawals.
func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, offset := page(r)
	ws, err := h.withdrawals.ListUserWithdrawals(r.Context(), u.ID, limit, offset)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", ws)
}
