package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/rs/zerolog"

	"roomchat/api"
	"roomchat/config"
	"roomchat/database"
	"roomchat/handlers"
	"roomchat/logging"
	"roomchat/models"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.IsDevelopment())

	driver, dsn := cfg.Database()
	db, err := database.Open(driver, dsn)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", driver).Msg("database connection failed")
	}
	logger.Info().Str("driver", driver).Msg("database initialized")

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := handlers.NewHub(func(ctx context.Context) ([]models.Document, error) {
		return handlers.LoadSnapshot(ctx, db)
	}, logging.Component(logger, "hub"))
	go hub.Run(hubCtx)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go expireSessions(janitorCtx, db, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(logging.Component(logger, "http"), db, hub),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("roomchat server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			// Hijacked websocket connections outlive srv.Shutdown, so the
			// hub is stopped after it and the database last.
			"roomchat": func(ctx context.Context) error {
				logger.Info().Msg("graceful shutdown initiated")
				err := srv.Shutdown(ctx)
				stopHub()
				hub.Wait()
				stopJanitor()
				return errors.Join(err, db.Close())
			},
		},
	)

	exitCode := <-wait
	logger.Info().Int("code", exitCode).Msg("server exited")
	os.Exit(exitCode)
}

// expireSessions prunes expired sessions once an hour.
func expireSessions(ctx context.Context, db *database.DB, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.DeleteExpiredSessions(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("session cleanup failed")
				continue
			}
			if n > 0 {
				logger.Info().Int64("removed", n).Msg("expired sessions removed")
			}
		}
	}
}
