package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/luckylubricants/rewards/internal/twin/store"
	"github.com/luckylubricants/rewards/pkg/twincore"
)

// Balance handles GET /api/wallet/balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	u, _ := h.store.Users.Get(getUserID(r))
	twincore.JSON(w, http.StatusOK, map[string]any{
		"user_id": u.ID,
		"balance": u.Points,
	})
}

// ScanVoucher handles POST /api/wallet/scan.
func (h *Handler) ScanVoucher(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UUID   string `json:"uuid"`
		UserID flexID `json:"user_id"`
	}
	if !decodeBody(w, r, &req) || !ownUser(w, r, req.UserID) {
		return
	}
	if strings.TrimSpace(req.UUID) == "" {
		twincore.Message(w, http.StatusUnprocessableEntity, "Voucher code is required.")
		return
	}

	earned, balance, err := h.store.ScanVoucher(getUserID(r), req.UUID)
	switch {
	case errors.Is(err, store.ErrVoucherNotFound):
		twincore.Error(w, http.StatusNotFound, "Invalid voucher code.")
		return
	case errors.Is(err, store.ErrVoucherUsed):
		twincore.PlainError(w, http.StatusConflict, "Voucher already redeemed.")
		return
	case err != nil:
		twincore.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	twincore.JSON(w, http.StatusOK, map[string]any{
		"message":       "Voucher redeemed",
		"points_earned": earned,
		"balance":       balance,
	})
}

// Transactions handles GET /api/wallet/transactions.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, h.store.TransactionsFor(getUserID(r)))
}

// MintVoucher handles POST /twin/vouchers. It is not part of the Lucky API.
func (h *Handler) MintVoucher(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points int `json:"points"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Points <= 0 {
		twincore.Error(w, http.StatusBadRequest, "points must be positive")
		return
	}
	twincore.JSON(w, http.StatusCreated, h.store.MintVoucher(req.Points))
}
