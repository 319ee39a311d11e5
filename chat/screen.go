package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"roomchat/cache"
	"roomchat/chatsync"
	"roomchat/media"
	"roomchat/models"
)

// Backend is the part of the API client the chat screen writes through.
type Backend interface {
	CurrentUser() *models.Identity
	AddMessage(ctx context.Context, msg models.NewMessage) (*models.Message, error)
	SignOut(ctx context.Context) error
}

// ScreenDeps wires a Screen.
type ScreenDeps struct {
	Backend  Backend
	Stream   chatsync.Stream
	Store    *cache.Store
	Sessions *cache.SessionStore
	Alerter  Alerter
	Logger   zerolog.Logger
}

// Reconnect backoff bounds after the live stream drops.
const (
	DefaultReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
)

var errDeactivated = errors.New("screen deactivated")

// Screen is the chat screen of a signed-in user. Each Activate starts a
// fresh reducer and subscription; Deactivate releases both. A stream that
// drops on its own is resubscribed until the screen is deactivated.
type Screen struct {
	backend  Backend
	stream   chatsync.Stream
	store    *cache.Store
	sessions *cache.SessionStore
	alerter  Alerter
	logger   zerolog.Logger

	// OnChange receives every new message list. It runs while the reducer
	// is locked and must not call Messages.
	OnChange func([]models.ChatMessage)

	// ReconnectDelay is the first wait before resubscribing; it doubles
	// on each failed attempt.
	ReconnectDelay time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	reducer *chatsync.Reducer
	session *chatsync.Session
	wg      sync.WaitGroup
}

// NewScreen creates an inactive chat screen.
func NewScreen(deps ScreenDeps) *Screen {
	return &Screen{
		backend:        deps.Backend,
		stream:         deps.Stream,
		store:          deps.Store,
		sessions:       deps.Sessions,
		alerter:        deps.Alerter,
		logger:         deps.Logger.With().Str("component", "chat").Logger(),
		ReconnectDelay: DefaultReconnectDelay,
	}
}

// Activate paints the cached history, then subscribes to the live stream.
// Activating an active screen does nothing.
func (s *Screen) Activate(ctx context.Context) error {
	if s.backend.CurrentUser() == nil {
		return ErrNotSignedIn
	}

	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	session, err := s.connect(ctx, stop)
	if err != nil {
		s.mu.Lock()
		if s.stop == stop {
			s.stop, s.reducer = nil, nil
		}
		s.mu.Unlock()
		if errors.Is(err, errDeactivated) {
			return nil
		}
		return fmt.Errorf("subscribe: %w", err)
	}

	s.wg.Add(1)
	go s.supervise(ctx, stop, session)
	return nil
}

// connect primes a fresh reducer from the cache and binds it to a new
// subscription.
func (s *Screen) connect(ctx context.Context, stop chan struct{}) (*chatsync.Session, error) {
	reducer := chatsync.NewReducer(s.store, s.logger)
	reducer.OnChange = s.OnChange

	s.mu.Lock()
	if s.stop != stop {
		s.mu.Unlock()
		return nil, errDeactivated
	}
	previous := s.reducer
	s.reducer = reducer
	s.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	reducer.Prime(ctx)

	session, err := chatsync.Bind(ctx, s.stream, reducer)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to subscribe to messages")
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != stop {
		session.Close()
		return nil, errDeactivated
	}
	s.session = session
	return session, nil
}

// supervise resubscribes whenever the live stream ends on its own.
func (s *Screen) supervise(ctx context.Context, stop chan struct{}, session *chatsync.Session) {
	defer s.wg.Done()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-session.Done():
		}

		select {
		case <-stop:
			return
		default:
		}

		s.logger.Warn().Err(session.Err()).Msg("message stream lost, reconnecting")
		session.Close()

		delay := s.ReconnectDelay
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			next, err := s.connect(ctx, stop)
			if err == nil {
				s.logger.Info().Msg("message stream reconnected")
				session = next
				break
			}
			if errors.Is(err, errDeactivated) {
				return
			}
			delay = min(delay*2, maxReconnectDelay)
		}
	}
}

// Deactivate releases the subscription. Snapshots still in flight are
// dropped. It is safe to call at any time except from OnChange.
func (s *Screen) Deactivate() {
	s.mu.Lock()
	stop, reducer, session := s.stop, s.reducer, s.session
	s.stop, s.reducer, s.session = nil, nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if reducer != nil {
		reducer.Close()
	}
	if err := session.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("subscription closed with error")
	}
	s.wg.Wait()
}

// Messages returns the list currently on screen.
func (s *Screen) Messages() []models.ChatMessage {
	s.mu.Lock()
	reducer := s.reducer
	s.mu.Unlock()

	if reducer == nil {
		return nil
	}
	return reducer.Messages()
}

// SendText posts a text message. Blank input is ignored. A failed write is
// only logged; the result tells the caller whether to clear its input.
func (s *Screen) SendText(ctx context.Context, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	if _, err := s.backend.AddMessage(ctx, models.NewMessage{Text: text}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send message")
		return false
	}
	return true
}

// SendImage encodes the image at path and posts it. Failures are shown to
// the user.
func (s *Screen) SendImage(ctx context.Context, path string) bool {
	if strings.TrimSpace(path) == "" {
		s.alerter.Alert("No image selected", "Choose an image file to send.")
		return false
	}

	uri, err := media.EncodeFile(path, s.logger)
	if err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("failed to read image")
		s.alerter.Alert("Upload failed", err.Error())
		return false
	}

	if _, err := s.backend.AddMessage(ctx, models.NewMessage{ImageURL: &uri}); err != nil {
		s.logger.Error().Err(err).Msg("failed to send image")
		s.alerter.Alert("Upload failed", err.Error())
		return false
	}
	return true
}

// Logout leaves the screen, ends the session and forgets it locally.
func (s *Screen) Logout(ctx context.Context) error {
	s.Deactivate()

	err := s.backend.SignOut(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("sign out failed")
	}
	if clearErr := s.sessions.Clear(ctx); clearErr != nil {
		s.logger.Warn().Err(clearErr).Msg("failed to clear saved session")
		err = errors.Join(err, clearErr)
	}
	return err
}

// IsMine reports whether msg was sent by the signed-in user.
func (s *Screen) IsMine(msg models.ChatMessage) bool {
	id := s.backend.CurrentUser()
	return id != nil && msg.User == id.Email
}

const renderWidth = 72

// Render prints messages oldest first. The user's own messages are right
// aligned.
func (s *Screen) Render(w io.Writer, messages []models.ChatMessage) {
	if len(messages) == 0 {
		fmt.Fprintln(w, "No messages yet.")
		return
	}

	for _, msg := range messages {
		line := formatMessage(msg)
		if s.IsMine(msg) {
			fmt.Fprintf(w, "%*s\n", renderWidth, line)
			continue
		}
		fmt.Fprintln(w, line)
	}
}

func formatMessage(msg models.ChatMessage) string {
	sender := msg.User
	if sender == "" {
		sender = "unknown"
	}

	var parts []string
	if msg.Text != "" {
		parts = append(parts, msg.Text)
	}
	if msg.HasImage() {
		kb := (media.EncodedSize(*msg.ImageURL) + 1023) / 1024
		parts = append(parts, fmt.Sprintf("[image %d KB]", kb))
	}
	if len(parts) == 0 {
		parts = append(parts, "(empty)")
	}
	return sender + ": " + strings.Join(parts, " ")
}
