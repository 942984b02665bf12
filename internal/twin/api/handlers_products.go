package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/luckylubricants/rewards/internal/twin/store"
	"github.com/luckylubricants/rewards/pkg/twincore"
)

// ListProducts handles GET /api/products/list.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, h.store.Products.List())
}

// AddToCart handles POST /api/products/cart/add.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID flexID `json:"product_id"`
		UserID    flexID `json:"user_id"`
	}
	if !decodeBody(w, r, &req) || !ownUser(w, r, req.UserID) {
		return
	}

	count, err := h.store.AddToCart(getUserID(r), int64(req.ProductID))
	if errors.Is(err, store.ErrProductNotFound) {
		twincore.Error(w, http.StatusNotFound, "Product not found.")
		return
	}
	if err != nil {
		twincore.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	twincore.JSON(w, http.StatusCreated, map[string]any{
		"message":    "Added to cart",
		"cart_count": count,
	})
}

// PlaceOrder handles POST /api/products/order/place.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID flexID `json:"user_id"`
	}
	if !decodeBody(w, r, &req) || !ownUser(w, r, req.UserID) {
		return
	}

	order, err := h.store.PlaceOrder(getUserID(r))
	if errors.Is(err, store.ErrCartEmpty) {
		twincore.Message(w, http.StatusUnprocessableEntity, "Your cart is empty.")
		return
	}
	if err != nil {
		twincore.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Snowflake ids go out as raw numbers under the camelCase key.
	id, _ := strconv.ParseInt(order.OrderID, 10, 64)
	twincore.JSON(w, http.StatusCreated, map[string]any{
		"message": "Order placed",
		"orderId": id,
	})
}
