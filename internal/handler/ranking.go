package handler

import (
	"net/http"
	"strconv"

	"taskkash/internal/service"
)

// RankingHandler serves the public leaderboard.
type RankingHandler struct {
	ranking *service.RankingService
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(ranking *service.RankingService) *RankingHandler {
	return &RankingHandler{ranking: ranking}
}

// Leaderboard handles GET /api/leaderboard.
func (h *RankingHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	lb, err := h.ranking.Leaderboard(r.Context(), limit)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", lb)
}
