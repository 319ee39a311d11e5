package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/database"
	"roomchat/handlers"
	"roomchat/models"
)

type testServer struct {
	*httptest.Server
	db *database.DB
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	db, err := database.Open(database.DriverSQLite, ":memory:")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	hub := handlers.NewHub(func(ctx context.Context) ([]models.Document, error) {
		return handlers.LoadSnapshot(ctx, db)
	}, zerolog.Nop())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(zerolog.Nop(), db, hub))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		hub.Wait()
		db.Close()
	})
	return &testServer{Server: srv, db: db}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (s *testServer) signup(t *testing.T, email string) models.AuthResponse {
	t.Helper()

	resp, body := s.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var auth models.AuthResponse
	require.NoError(t, json.Unmarshal(body, &auth))
	return auth
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()
	var e struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &e))
	return e.Error
}

func TestAuthFlow(t *testing.T) {
	srv := setupServer(t)

	auth := srv.signup(t, "  Alice@Example.com ")
	assert.True(t, auth.Success)
	assert.NotEmpty(t, auth.Token)
	assert.Equal(t, "alice@example.com", auth.User.Email)

	tests := []struct {
		name     string
		path     string
		body     map[string]string
		status   int
		errorMsg string
	}{
		{"duplicate email", "/api/auth/signup", map[string]string{"email": "alice@example.com", "password": "secret123"}, http.StatusConflict, "Email already registered"},
		{"short password", "/api/auth/signup", map[string]string{"email": "bob@example.com", "password": "123"}, http.StatusBadRequest, "Password must be at least 6 characters"},
		{"bad email", "/api/auth/signup", map[string]string{"email": "bob", "password": "secret123"}, http.StatusBadRequest, "Invalid email address"},
		{"wrong password", "/api/auth/login", map[string]string{"email": "alice@example.com", "password": "nope"}, http.StatusUnauthorized, "Invalid email or password"},
		{"unknown user", "/api/auth/login", map[string]string{"email": "carol@example.com", "password": "secret123"}, http.StatusUnauthorized, "Invalid email or password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := srv.do(t, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.errorMsg, errorMessage(t, body))
		})
	}

	resp, body := srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login models.AuthResponse
	require.NoError(t, json.Unmarshal(body, &login))

	resp, body = srv.do(t, http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me models.UserResponse
	require.NoError(t, json.Unmarshal(body, &me))
	assert.Equal(t, "alice@example.com", me.Email)
	assert.Equal(t, auth.User.UID, me.UID)

	resp, _ = srv.do(t, http.MethodPost, "/api/auth/logout", login.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = srv.do(t, http.MethodGet, "/api/auth/me", login.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMessages(t *testing.T) {
	srv := setupServer(t)
	auth := srv.signup(t, "a@example.com")

	resp, _ := srv.do(t, http.MethodGet, "/api/messages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	image := "data:image/png;base64,iVBORw0KGgo="
	tests := []struct {
		name   string
		body   models.NewMessage
		status int
	}{
		{"text", models.NewMessage{Text: "hi"}, http.StatusCreated},
		{"image only", models.NewMessage{ImageURL: &image}, http.StatusCreated},
		{"whitespace only", models.NewMessage{Text: "   "}, http.StatusBadRequest},
		{"remote image link", models.NewMessage{ImageURL: strPtr("https://example.com/a.png")}, http.StatusBadRequest},
		{"too long", models.NewMessage{Text: strings.Repeat("x", handlers.MaxTextLength+1)}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := srv.do(t, http.MethodPost, "/api/messages", auth.Token, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
		})
	}

	resp, body := srv.do(t, http.MethodGet, "/api/messages", auth.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snapshot models.SnapshotPayload
	require.NoError(t, json.Unmarshal(body, &snapshot))
	require.Len(t, snapshot.Documents, 2)

	first := snapshot.Documents[0].Data
	assert.Equal(t, "hi", first["text"])
	assert.Equal(t, "a@example.com", first["user"])
	assert.Nil(t, first["imageUrl"])

	second := snapshot.Documents[1].Data
	assert.Equal(t, "", second["text"])
	assert.Equal(t, image, second["imageUrl"])
}

func TestMessages_BodyLimit(t *testing.T) {
	srv := setupServer(t)
	auth := srv.signup(t, "a@example.com")

	huge := "data:image/jpeg;base64," + strings.Repeat("A", handlers.MaxDocumentBytes)
	resp, _ := srv.do(t, http.MethodPost, "/api/messages", auth.Token, models.NewMessage{ImageURL: &huge})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestWebSocket_SnapshotOnConnectAndAfterWrite(t *testing.T) {
	srv := setupServer(t)
	auth := srv.signup(t, "a@example.com")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+auth.Token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	readSnapshot := func() models.SnapshotPayload {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var frame struct {
			Type    string                 `json:"type"`
			Payload models.SnapshotPayload `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&frame))
		require.Equal(t, models.FrameSnapshot, frame.Type)
		return frame.Payload
	}

	initial := readSnapshot()
	assert.Empty(t, initial.Documents)

	resp2, _ := srv.do(t, http.MethodPost, "/api/messages", auth.Token, models.NewMessage{Text: "hello"})
	require.Equal(t, http.StatusCreated, resp2.StatusCode)

	next := readSnapshot()
	require.Len(t, next.Documents, 1)
	assert.Equal(t, "hello", next.Documents[0].Data["text"])
}

func TestHealth(t *testing.T) {
	srv := setupServer(t)

	resp, body := srv.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func strPtr(s string) *string { return &s }

func TestSignup_ConcurrentSameEmail(t *testing.T) {
	srv := setupServer(t)

	const attempts = 8
	statuses := make(chan int, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := strings.NewReader(`{"email":"race@example.com","password":"secret123"}`)
			resp, err := http.Post(srv.URL+"/api/auth/signup", "application/json", body)
			if !assert.NoError(t, err) {
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	counts := map[int]int{}
	for status := range statuses {
		counts[status]++
	}
	assert.Equal(t, map[int]int{http.StatusCreated: 1, http.StatusConflict: attempts - 1}, counts)
}
