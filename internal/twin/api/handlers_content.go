package api

import (
	"net/http"
	"strings"

	"github.com/luckylubricants/rewards/pkg/twincore"
)

// Banners handles GET /api/content/banners.
func (h *Handler) Banners(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, h.store.Banners.List())
}

// ContactSupport handles POST /api/content/support/contact.
func (h *Handler) ContactSupport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
		Message string `json:"message"`
		UserID  flexID `json:"user_id"`
	}
	if !decodeBody(w, r, &req) || !ownUser(w, r, req.UserID) {
		return
	}
	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Message) == "" {
		twincore.Message(w, http.StatusUnprocessableEntity, "Subject and message are required.")
		return
	}

	ticket := h.store.CreateTicket(getUserID(r), req.Subject, req.Message)
	twincore.JSON(w, http.StatusCreated, map[string]any{
		"message":   "Support request received",
		"ticket_id": ticket.TicketID,
	})
}

// Notifications handles GET /api/content/notifications. An empty inbox is
// reported as a message object rather than an empty array.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	notes := h.store.NotificationsFor(getUserID(r))
	if len(notes) == 0 {
		twincore.Message(w, http.StatusOK, "No notifications")
		return
	}
	twincore.JSON(w, http.StatusOK, notes)
}
