package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"roomchat/database"
	"roomchat/handlers"
	"roomchat/middleware"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, db *database.DB, hub *handlers.Hub) *mux.Router {
	h := handlers.NewHandler(db, hub, logger)
	auth := middleware.Auth(db)

	r := mux.NewRouter()
	r.Use(middleware.Metrics)
	r.Use(middleware.Logger(logger))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Auth routes
	r.HandleFunc("/api/auth/signup", h.Signup).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", h.Logout).Methods(http.MethodPost)
	r.Handle("/api/auth/me", auth(http.HandlerFunc(h.Me))).Methods(http.MethodGet)

	// Message routes
	r.Handle("/api/messages", auth(http.HandlerFunc(h.ListMessages))).Methods(http.MethodGet)
	r.Handle("/api/messages", auth(http.HandlerFunc(h.SendMessage))).Methods(http.MethodPost)

	// Realtime
	r.Handle("/ws", auth(http.HandlerFunc(h.HandleWebSocket))).Methods(http.MethodGet)

	return r
}
