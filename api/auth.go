/*
auth.go - login and user administration handlers

PURPOSE:
  Issues JWTs on login after a bcrypt password check, and lets admins create
  staff accounts. Passwords are only ever handled as bcrypt hashes past this
  boundary.

SEE ALSO:
  - auth package: hashing, token signing, session context
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/brightsmile/clinic-engine/auth"
	"github.com/brightsmile/clinic-engine/clinic"
)

// Login verifies credentials and returns a signed session token.
// POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required", nil)
		return
	}

	user, err := h.Store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Login failed", err)
		return
	}
	// Identical response for unknown user and wrong password.
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	session := auth.SessionContext{
		UserID:     user.ID,
		Username:   user.Username,
		Role:       user.Role,
		LocationID: user.LocationID,
	}
	token, err := auth.SignToken(h.JWTSecret, session, h.TokenTTL)
	if err != nil {
		h.Logger.Error("token signing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Login failed", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:      token,
		Username:   user.Username,
		Role:       user.Role,
		LocationID: string(user.LocationID),
	})
}

// CreateUser registers a staff account. Admin only.
// POST /api/admin/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Username == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Username and a password of at least 8 characters are required", nil)
		return
	}
	if req.Role != clinic.RoleAdmin && req.Role != clinic.RoleStaff {
		writeError(w, http.StatusBadRequest, "Role must be admin or staff", nil)
		return
	}

	existing, err := h.Store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "Username already taken", nil)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}

	user := clinic.User{
		ID:           clinic.NewID(),
		Username:     req.Username,
		PasswordHash: hash,
		Role:         req.Role,
		LocationID:   clinic.LocationID(req.LocationID),
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.Store.InsertUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}

	h.Logger.Info("user created",
		zap.String("username", user.Username),
		zap.String("role", user.Role))
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":       user.ID,
		"username": user.Username,
		"role":     user.Role,
	})
}
