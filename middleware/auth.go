package middleware

import (
	"context"
	"net/http"
	"strings"

	"roomchat/database"
	"roomchat/models"
)

type contextKey string

const UserContextKey contextKey = "user"

// SessionCookie is the cookie carrying the session token for browser clients.
const SessionCookie = "session"

// Auth middleware checks for a valid session and adds the user to the context.
// The token is read from "Authorization: Bearer" first, then the session cookie.
func Auth(db *database.DB) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				jsonError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			session, err := db.GetSession(r.Context(), token)
			if err != nil {
				jsonError(w, http.StatusUnauthorized, "Invalid session")
				return
			}

			user, err := db.GetUserByID(r.Context(), session.UserID)
			if err != nil || user.IsDisabled {
				jsonError(w, http.StatusUnauthorized, "User not found")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionToken extracts the session token from the request, or "".
func SessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// GetUserFromContext retrieves the user from the request context
func GetUserFromContext(r *http.Request) *models.User {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error": "` + message + `"}`))
}
