package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"roomchat/database"
	"roomchat/metrics"
	"roomchat/middleware"
	"roomchat/models"
)

// sessionTTL is how long a login stays valid.
const sessionTTL = 7 * 24 * time.Hour

// MinPasswordLength mirrors the hosted auth provider the client was built against.
const MinPasswordLength = 6

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup handles user registration
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = normalizeEmail(req.Email)

	if !strings.Contains(req.Email, "@") {
		h.Error(w, http.StatusBadRequest, "Invalid email address")
		return
	}

	if len(req.Password) < MinPasswordLength {
		h.Error(w, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	}

	if _, err := h.db.GetUserByEmail(r.Context(), req.Email); err == nil {
		h.Error(w, http.StatusConflict, "Email already registered")
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		h.logger.Error().Err(err).Msg("failed to look up user")
		h.Error(w, http.StatusInternalServerError, "Server error")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Server error")
		return
	}

	user, err := h.db.CreateUser(r.Context(), req.Email, string(hashedPassword))
	if errors.Is(err, database.ErrDuplicate) {
		// registered concurrently since the lookup above
		h.Error(w, http.StatusConflict, "Email already registered")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create user")
		h.Error(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	metrics.UsersRegistered.Inc()

	h.startSession(w, r, user, http.StatusCreated)
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.db.GetUserByEmail(r.Context(), normalizeEmail(req.Email))
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			h.logger.Error().Err(err).Msg("failed to look up user")
		}
		metrics.LoginFailures.Inc()
		h.Error(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		metrics.LoginFailures.Inc()
		h.Error(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	if user.IsDisabled {
		h.Error(w, http.StatusForbidden, "Account disabled")
		return
	}

	h.startSession(w, r, user, http.StatusOK)
}

// Logout handles user logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		if err := h.db.DeleteSession(r.Context(), token); err != nil {
			h.logger.Warn().Err(err).Msg("failed to delete session")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})

	h.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Me returns the current authenticated user
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	h.JSON(w, http.StatusOK, user.ToResponse())
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *models.User, status int) {
	sessionID := generateSessionID()
	expiresAt := time.Now().Add(sessionTTL)
	if err := h.db.CreateSession(r.Context(), sessionID, user.ID, expiresAt); err != nil {
		h.logger.Error().Err(err).Msg("failed to create session")
		h.Error(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    sessionID,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	h.JSON(w, status, models.AuthResponse{
		Success: true,
		Token:   sessionID,
		User:    user.ToResponse(),
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateSessionID() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
