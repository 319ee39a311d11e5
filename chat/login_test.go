package chat

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/cache"
	"roomchat/models"
)

func setupLogin(t *testing.T) (*Login, *fakeBackend, *cache.SessionStore, *recordingAlerter) {
	t.Helper()
	backend := newFakeBackend()
	sessions := cache.NewSessionStore(cache.NewMemoryKV())
	alerter := &recordingAlerter{}
	return NewLogin(backend, sessions, alerter, zerolog.Nop()), backend, sessions, alerter
}

func TestLogin_RequiredFields(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"both empty", "", ""},
		{"no password", "a@example.com", ""},
		{"no email", "", "secret1"},
		{"whitespace only", "   ", "      "},
		{"whitespace password", "a@example.com", " \t "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			login, _, _, alerter := setupLogin(t)
			login.Email, login.Password = tt.email, tt.password

			id, err := login.Submit(context.Background())
			assert.Nil(t, id)
			assert.ErrorIs(t, err, ErrEmptyCredentials)
			assert.Equal(t, []alert{{"Error", "Email and password are required"}}, alerter.alerts)
		})
	}
}

func TestLogin_RegisterThenLogin(t *testing.T) {
	ctx := context.Background()
	login, backend, sessions, alerter := setupLogin(t)

	login.Toggle()
	require.Equal(t, ModeRegister, login.Mode)
	login.Email, login.Password, login.Confirm = "a@example.com", "secret1", "secret2"

	_, err := login.Submit(ctx)
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	assert.Equal(t, alert{"Error", "Passwords do not match"}, alerter.alerts[0])

	login.Confirm = "secret1"
	id, err := login.Submit(ctx)
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.Equal(t, ModeLogin, login.Mode)
	assert.Empty(t, login.Email)
	assert.Empty(t, login.Password)
	assert.Equal(t, "Success", alerter.alerts[1].title)
	assert.Nil(t, backend.CurrentUser(), "signup session is closed")

	login.Email, login.Password = "a@example.com", "secret1"
	id, err = login.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", id.Email)

	saved, err := sessions.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, saved)
}

func TestLogin_ProviderErrorsShownUnchanged(t *testing.T) {
	ctx := context.Background()
	login, backend, sessions, alerter := setupLogin(t)
	backend.users["a@example.com"] = "secret1"

	login.Email, login.Password = "a@example.com", "wrong"
	_, err := login.Submit(ctx)
	require.Error(t, err)

	login.Toggle()
	login.Password, login.Confirm = "secret1", "secret1"
	_, err = login.Submit(ctx)
	require.Error(t, err)

	assert.Equal(t, []alert{
		{"Login failed", "Invalid email or password"},
		{"Registration failed", "Email already registered"},
	}, alerter.alerts)
	saved, _ := sessions.Load(ctx)
	assert.Nil(t, saved)
}

func TestLogin_Resume(t *testing.T) {
	ctx := context.Background()
	login, backend, sessions, _ := setupLogin(t)

	_, ok := login.Resume(ctx)
	assert.False(t, ok)

	stored := models.Identity{UID: "9", Email: "z@example.com", Token: "tok"}
	require.NoError(t, sessions.Save(ctx, stored))

	id, ok := login.Resume(ctx)
	require.True(t, ok)
	assert.Equal(t, stored, *id)
	assert.Equal(t, &stored, backend.CurrentUser())
}
