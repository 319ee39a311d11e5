package chat

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"roomchat/cache"
	"roomchat/models"
)

// Mode selects what the login form submits.
type Mode string

const (
	ModeLogin    Mode = "login"
	ModeRegister Mode = "register"
)

// Authenticator is the auth side of the API client.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (*models.Identity, error)
	SignIn(ctx context.Context, email, password string) (*models.Identity, error)
	SignOut(ctx context.Context) error
	Restore(id models.Identity)
}

// Login is the login/register form.
type Login struct {
	auth     Authenticator
	sessions *cache.SessionStore
	alerter  Alerter
	logger   zerolog.Logger

	Mode     Mode
	Email    string
	Password string
	Confirm  string
}

// NewLogin returns a form in login mode.
func NewLogin(auth Authenticator, sessions *cache.SessionStore, alerter Alerter, logger zerolog.Logger) *Login {
	return &Login{
		auth:     auth,
		sessions: sessions,
		alerter:  alerter,
		logger:   logger.With().Str("component", "login").Logger(),
		Mode:     ModeLogin,
	}
}

// Toggle switches between login and register.
func (l *Login) Toggle() {
	if l.Mode == ModeLogin {
		l.Mode = ModeRegister
	} else {
		l.Mode = ModeLogin
	}
}

func (l *Login) clear() {
	l.Email, l.Password, l.Confirm = "", "", ""
}

// Submit signs in or registers with the form's fields. It returns the
// identity only when the user ends up signed in: a successful registration
// switches back to login mode instead.
func (l *Login) Submit(ctx context.Context) (*models.Identity, error) {
	if strings.TrimSpace(l.Email) == "" || strings.TrimSpace(l.Password) == "" {
		l.alerter.Alert("Error", "Email and password are required")
		return nil, ErrEmptyCredentials
	}

	if l.Mode == ModeRegister {
		return nil, l.register(ctx)
	}

	id, err := l.auth.SignIn(ctx, l.Email, l.Password)
	if err != nil {
		l.alerter.Alert("Login failed", err.Error())
		return nil, err
	}

	if err := l.sessions.Save(ctx, *id); err != nil {
		l.logger.Warn().Err(err).Msg("failed to save session")
	}
	l.clear()
	return id, nil
}

func (l *Login) register(ctx context.Context) error {
	if l.Password != l.Confirm {
		l.alerter.Alert("Error", "Passwords do not match")
		return ErrPasswordMismatch
	}

	if _, err := l.auth.SignUp(ctx, l.Email, l.Password); err != nil {
		l.alerter.Alert("Registration failed", err.Error())
		return err
	}

	// The backend opens a session on signup; the user logs in explicitly.
	if err := l.auth.SignOut(ctx); err != nil {
		l.logger.Warn().Err(err).Msg("failed to close signup session")
	}

	l.Mode = ModeLogin
	l.clear()
	l.alerter.Alert("Success", "Account created! Please log in.")
	return nil
}

// Resume restores the session saved by an earlier login. It reports
// false when there is none.
func (l *Login) Resume(ctx context.Context) (*models.Identity, bool) {
	id, err := l.sessions.Load(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("failed to read saved session")
		return nil, false
	}
	if id == nil {
		return nil, false
	}

	l.auth.Restore(*id)
	return id, true
}
