package handler

import (
	"net/http"

	"taskkash/internal/service"
)

// AccountHandler serves the caller's balance, ledger and feeds.
type AccountHandler struct {
	ledger *service.LedgerService
	feed   *service.FeedService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(ledger *service.LedgerService, feed *service.FeedService) *AccountHandler {
	return &AccountHandler{ledger: ledger, feed: feed}
}

// Balance handles GET /api/balance.
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	balance, err := h.ledger.Balance(r.Context(), u.ID)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", map[string]int64{"taskPoints": balance})
}

// ClaimDailyBonus handles POST /api/bonus/daily.
func (h *AccountHandler) ClaimDailyBonus(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	tx, err := h.ledger.ClaimToday(r.Context(), u.ID)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "daily bonus claimed", tx)
}

// Transactions handles GET /api/transactions.
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, offset := page(r)
	txs, err := h.ledger.History(r.Context(), u.ID, limit, offset)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", txs)
}

// Activities handles GET /api/activities.
func (h *AccountHandler) Activities(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, offset := page(r)
	activities, err := h.feed.Activities(r.Context(), u.ID, limit, offset)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", activities)
}

// Notifications handles GET /api/notifications.
func (h *AccountHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, offset := page(r)
	inbox, err := h.feed.Notifications(r.Context(), u.ID, limit, offset)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", inbox)
}

// MarkNotificationsRead handles POST /api/notifications/read. An empty id
// list marks everything read.
func (h *AccountHandler) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req markReadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	n, err := h.feed.MarkNotificationsRead(r.Context(), u.ID, req.IDs)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", map[string]int64{"updated": n})
}
