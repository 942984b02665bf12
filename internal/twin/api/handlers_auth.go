package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/segmentio/ksuid"

	"github.com/luckylubricants/rewards/internal/twin/store"
	"github.com/luckylubricants/rewards/pkg/twincore"
)

const maxUpload = 5 << 20

func profileView(u store.User) map[string]any {
	return map[string]any{
		"id":            u.ID,
		"name":          u.Name,
		"email":         u.Email,
		"phone":         u.Phone,
		"city":          u.City,
		"state":         u.State,
		"profile_image": u.ProfileImage,
	}
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		twincore.Message(w, http.StatusUnprocessableEntity, "Identifier and password are required.")
		return
	}

	u, ok := h.store.Authenticate(req.Identifier, req.Password)
	if !ok {
		twincore.Message(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	token, err := h.IssueToken(u.ID)
	if err != nil {
		twincore.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	twincore.JSON(w, http.StatusOK, map[string]any{
		"message":      "Login successful",
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(TokenTTL.Seconds()),
		"user":         profileView(u),
	})
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Phone    string `json:"phone"`
		Email    string `json:"email"`
		City     string `json:"city"`
		State    string `json:"state"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Phone == "" || req.Password == "" {
		twincore.Message(w, http.StatusUnprocessableEntity, "Name, phone and password are required.")
		return
	}
	if len(req.Password) < 6 {
		twincore.Message(w, http.StatusUnprocessableEntity, "The password must be at least 6 characters.")
		return
	}

	u, err := h.store.CreateUser(store.User{
		Name:  req.Name,
		Phone: req.Phone,
		Email: req.Email,
		City:  req.City,
		State: req.State,
	}, req.Password)
	if errors.Is(err, store.ErrPhoneTaken) {
		twincore.Message(w, http.StatusConflict, "Phone number already registered.")
		return
	}
	if err != nil {
		twincore.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	twincore.JSON(w, http.StatusCreated, map[string]any{
		"message": "Registration successful",
		"user":    profileView(u),
	})
}

// Profile handles GET /api/auth/profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	u, _ := h.store.Users.Get(getUserID(r))
	twincore.JSON(w, http.StatusOK, profileView(u))
}

// UploadProfileImage handles POST /api/auth/profile/upload (multipart "image").
func (h *Handler) UploadProfileImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		twincore.Message(w, http.StatusUnprocessableEntity, "Image must be a multipart upload under 5 MB.")
		return
	}
	if v := r.FormValue("user_id"); v != "" && v != "null" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			twincore.Message(w, http.StatusUnprocessableEntity, "Invalid user_id.")
			return
		}
		if !ownUser(w, r, flexID(id)) {
			return
		}
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		twincore.Message(w, http.StatusUnprocessableEntity, "Image file is required.")
		return
	}
	defer file.Close()
	head := make([]byte, 512)
	n, _ := io.ReadFull(file, head)
	if !strings.HasPrefix(http.DetectContentType(head[:n]), "image/") {
		twincore.Message(w, http.StatusUnprocessableEntity, "Only image uploads are allowed.")
		return
	}

	userID := getUserID(r)
	url := fmt.Sprintf("https://cdn.luckylubricants.in/avatars/%d/%s%s", userID, ksuid.New(), path.Ext(header.Filename))
	if err := h.store.SetProfileImage(userID, url); err != nil {
		twincore.Error(w, http.StatusNotFound, err.Error())
		return
	}
	twincore.JSON(w, http.StatusOK, map[string]any{
		"message":       "Profile image updated",
		"profile_image": url,
	})
}
