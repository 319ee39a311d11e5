// roomchat terminal client
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/rs/zerolog"

	"roomchat/cache"
	"roomchat/chat"
	"roomchat/chatsync"
	"roomchat/client"
	"roomchat/config"
	"roomchat/logging"
	"roomchat/models"
)

type app struct {
	cfg      *config.ClientConfig
	logger   zerolog.Logger
	client   *client.Client
	store    *cache.Store
	sessions *cache.SessionStore
	alerter  chat.Alerter
	login    *chat.Login
	screen   *chat.Screen
	closeKV  func() error
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadClient("")
	exitOnError(err)

	a := newApp(cfg)
	defer a.closeKV()

	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "register":
		a.login.Toggle()
		a.login.Email = requireArg("register <email>")
		a.login.Password = prompt("Password: ")
		a.login.Confirm = prompt("Confirm password: ")
		if _, err := a.login.Submit(ctx); err != nil {
			a.exit(1)
		}

	case "login":
		a.login.Email = requireArg("login <email>")
		a.login.Password = prompt("Password: ")
		id, err := a.login.Submit(ctx)
		if err != nil {
			a.exit(1)
		}
		fmt.Printf("Logged in as %s\n", id.Email)

	case "logout":
		a.resume(ctx)
		if err := a.screen.Logout(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "Warning:", err)
		}
		fmt.Println("Logged out")

	case "whoami":
		a.resume(ctx)
		me, err := a.client.Me(ctx)
		a.exitOnError(err)
		fmt.Printf("%s (uid %s)\n", me.Email, me.UID)

	case "send":
		a.resume(ctx)
		text := strings.Join(os.Args[2:], " ")
		if !a.screen.SendText(ctx, text) {
			fmt.Fprintln(os.Stderr, "Message not sent")
			a.exit(1)
		}

	case "send-image":
		a.resume(ctx)
		path := ""
		if len(os.Args) > 2 {
			path = os.Args[2]
		}
		if !a.screen.SendImage(ctx, path) {
			a.exit(1)
		}

	case "watch":
		a.resume(ctx)
		a.watch(ctx)

	case "history":
		if len(os.Args) > 2 && os.Args[2] == "--remote" {
			a.resume(ctx)
			docs, err := a.client.ListMessages(ctx)
			a.exitOnError(err)
			messages := make([]models.ChatMessage, 0, len(docs))
			for _, doc := range docs {
				messages = append(messages, chatsync.FromDocument(doc))
			}
			a.screen.Render(os.Stdout, messages)
			break
		}
		a.login.Resume(ctx)
		messages, ok := a.store.Load(ctx)
		if !ok {
			fmt.Println("No cached history.")
			break
		}
		a.screen.Render(os.Stdout, messages)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		a.exit(1)
	}
}

func newApp(cfg *config.ClientConfig) *app {
	logger := logging.New(os.Stderr, cfg.LogLevel, true)

	kv, closeKV := openKV(cfg, logging.Component(logger, "cache"))
	c := client.New(cfg.ServerURL)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		client:   c,
		store:    cache.NewStore(kv, logging.Component(logger, "cache")),
		sessions: cache.NewSessionStore(kv),
		alerter:  chat.TerminalAlerter{Out: os.Stderr},
		closeKV:  closeKV,
	}
	a.login = chat.NewLogin(c, a.sessions, a.alerter, logger)
	a.screen = chat.NewScreen(chat.ScreenDeps{
		Backend:  c,
		Stream:   chat.RemoteStream{Client: c},
		Store:    a.store,
		Sessions: a.sessions,
		Alerter:  a.alerter,
		Logger:   logger,
	})
	return a
}

// resume restores the saved session or exits.
func (a *app) resume(ctx context.Context) {
	if _, ok := a.login.Resume(ctx); !ok {
		fmt.Fprintln(os.Stderr, "Not logged in. Run: chat login <email>")
		a.exit(1)
	}
}

// watch renders the room on every change until interrupted.
func (a *app) watch(ctx context.Context) {
	a.screen.OnChange = func(messages []models.ChatMessage) {
		fmt.Print("\033[H\033[2J")
		a.screen.Render(os.Stdout, messages)
	}

	if err := a.screen.Activate(ctx); err != nil {
		a.exitOnError(err)
	}

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		5*time.Second,
		map[string]gfshutdown.Operation{
			"screen": func(context.Context) error {
				a.screen.Deactivate()
				return nil
			},
		},
	)
	a.exit(<-wait)
}

func (a *app) exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		a.exit(1)
	}
}

// exit closes the cache before leaving; os.Exit skips deferred calls.
func (a *app) exit(code int) {
	if err := a.closeKV(); err != nil {
		a.logger.Debug().Err(err).Msg("cache close failed")
	}
	os.Exit(code)
}

var stdin = bufio.NewReader(os.Stdin)

func prompt(label string) string {
	fmt.Fprint(os.Stderr, label)
	line, err := stdin.ReadString('\n')
	if err != nil && err != io.EOF {
		exitOnError(err)
	}
	return strings.TrimRight(line, "\r\n")
}

func requireArg(syntax string) string {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: chat "+syntax)
		os.Exit(1)
	}
	return os.Args[2]
}

func usage() {
	fmt.Println(`chat - terminal client for roomchat

Usage: chat <command> [options]

Commands:
  register <email>        Create an account (password read from stdin)
  login <email>           Log in and remember the session
  logout                  End the session
  whoami                  Show the logged in user
  watch                   Follow the room until Ctrl+C
  send <text>             Post a message
  send-image <path>       Post an image
  history [--remote]      Print the cached history, offline, or
                          fetch it once from the server

Config: ~/.roomchat/config.yaml or ROOMCHAT_* variables
  server_url, cache_backend (sqlite|redis|memory), cache_path,
  redis_addr, redis_prefix, log_level`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
