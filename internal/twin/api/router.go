// Package api implements the Lucky loyalty REST API on top of the twin's
// in-memory store.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/luckylubricants/rewards/internal/twin/store"
	"github.com/luckylubricants/rewards/pkg/twincore"
)

// TokenTTL is how long an access token stays valid.
const TokenTTL = 24 * time.Hour

type contextKey string

const userIDCtxKey contextKey = "user_id"

// Handler holds all API handler state.
type Handler struct {
	store  *store.MemoryStore
	mw     *twincore.Middleware
	secret []byte
}

// NewHandler creates an API handler that signs tokens with secret.
func NewHandler(s *store.MemoryStore, mw *twincore.Middleware, secret string) *Handler {
	return &Handler{store: s, mw: mw, secret: []byte(secret)}
}

// Routes mounts the API endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(h.mw.FaultInjection)

		r.Post("/auth/login", h.Login)
		r.Post("/auth/register", h.Register)
		r.Get("/content/banners", h.Banners)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware)

			r.Get("/auth/profile", h.Profile)
			r.Post("/auth/profile/upload", h.UploadProfileImage)

			r.Get("/wallet/balance", h.Balance)
			r.Post("/wallet/scan", h.ScanVoucher)
			r.Get("/wallet/transactions", h.Transactions)

			r.Get("/rewards/list", h.ListRewards)
			r.Post("/rewards/redeem", h.Redeem)
			r.Get("/rewards/history", h.RedemptionHistory)

			r.Get("/products/list", h.ListProducts)
			r.Post("/products/cart/add", h.AddToCart)
			r.Post("/products/order/place", h.PlaceOrder)

			r.Post("/content/support/contact", h.ContactSupport)
			r.Get("/content/notifications", h.Notifications)
		})
	})

	// Twin-only helper for printing fresh QR vouchers.
	r.Post("/twin/vouchers", h.MintVoucher)
}

// IssueToken signs an access token for userID, valid for TokenTTL of
// simulated time.
func (h *Handler) IssueToken(userID int64) (string, error) {
	now := h.store.Clock.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "twin-lucky",
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}

func (h *Handler) parseToken(raw string) (int64, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return h.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(h.store.Clock.Now),
	)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(claims.Subject, 10, 64)
}

// authMiddleware validates the Bearer token and stores the user id in the
// request context. A user_id query parameter must match the token.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			twincore.Message(w, http.StatusUnauthorized, "Unauthenticated.")
			return
		}
		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			twincore.Message(w, http.StatusUnauthorized, "Invalid authorization format.")
			return
		}
		userID, err := h.parseToken(raw)
		if err != nil {
			twincore.Message(w, http.StatusUnauthorized, "Token expired or invalid.")
			return
		}
		if _, ok := h.store.Users.Get(userID); !ok {
			twincore.Message(w, http.StatusUnauthorized, "Unauthenticated.")
			return
		}
		if q := r.URL.Query().Get("user_id"); q != "" && q != "null" && q != strconv.FormatInt(userID, 10) {
			twincore.Message(w, http.StatusForbidden, "User mismatch.")
			return
		}

		ctx := context.WithValue(r.Context(), userIDCtxKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// getUserID extracts the authenticated user id from context.
func getUserID(r *http.Request) int64 {
	return r.Context().Value(userIDCtxKey).(int64)
}

// flexID accepts an id sent as a number, a numeric string or null.
type flexID int64

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s", b)
	}
	*f = flexID(n)
	return nil
}

// decodeBody decodes a JSON request body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		twincore.Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// ownUser rejects a body user_id that names somebody other than the caller.
func ownUser(w http.ResponseWriter, r *http.Request, claimed flexID) bool {
	if claimed != 0 && int64(claimed) != getUserID(r) {
		twincore.Message(w, http.StatusForbidden, "User mismatch.")
		return false
	}
	return true
}
