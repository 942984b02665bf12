package api

import (
	"errors"
	"net/http"

	"github.com/luckylubricants/rewards/internal/twin/store"
	"github.com/luckylubricants/rewards/pkg/twincore"
)

// ListRewards handles GET /api/rewards/list.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, h.store.Rewards.List())
}

// Redeem handles POST /api/rewards/redeem.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RewardID flexID `json:"reward_id"`
		UserID   flexID `json:"user_id"`
	}
	if !decodeBody(w, r, &req) || !ownUser(w, r, req.UserID) {
		return
	}
	if req.RewardID == 0 {
		twincore.Message(w, http.StatusUnprocessableEntity, "reward_id is required.")
		return
	}

	red, balance, err := h.store.Redeem(getUserID(r), int64(req.RewardID))
	switch {
	case errors.Is(err, store.ErrRewardNotFound):
		twincore.Error(w, http.StatusNotFound, "Reward not found.")
		return
	case errors.Is(err, store.ErrInsufficientPoints):
		twincore.PlainError(w, http.StatusUnprocessableEntity, "Insufficient points")
		return
	case err != nil:
		twincore.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	twincore.JSON(w, http.StatusOK, map[string]any{
		"message": "Reward redeemed successfully",
		"code":    red.Code,
		"balance": balance,
	})
}

// RedemptionHistory handles GET /api/rewards/history.
func (h *Handler) RedemptionHistory(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, h.store.RedemptionsFor(getUserID(r)))
}
