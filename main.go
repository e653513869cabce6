package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ragchat/internal/api"
	"ragchat/internal/config"
	"ragchat/internal/conversation"
	"ragchat/internal/credentials"
	"ragchat/internal/session"
	"ragchat/internal/terminal"
	"ragchat/internal/ui"
)

func main() {
	// Set the GetEnv function for config
	config.GetEnv = os.Getenv

	// Load .env file if present, then parse flags over env over defaults
	_ = godotenv.Load()
	cfg := parseFlags()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := zap.NewNop()
	if cfg.Verbose {
		if dev, err := zap.NewDevelopment(); err == nil {
			logger = dev
		}
	}
	defer logger.Sync()

	display := ui.NewDisplay()

	// Initialize components
	store, err := credentials.NewStore(cfg.TokenPath, cfg.CookiePath, cfg.APIBaseURL)
	if err != nil {
		display.PrintError(err)
		os.Exit(1)
	}
	client := api.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, store).WithLogger(logger)
	sessions := session.NewController(client, store).WithLogger(logger)

	sidebar := newChatList(client)
	conv := conversation.NewController(client, sidebar)

	sessions.SetSignedOutHandler(func() {
		// The chat loop notices the missing credential on its next turn.
		// Conversation state must not survive into the next sign-in.
		conv.Reset()
		sidebar.Clear()
	})

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		display.PrintInfo("\nShutting down...")
		cancel()
		os.Exit(0)
	}()

	// Route gate: no credential means the auth surface, otherwise the chat
	// surface. A forced logout inside the gateway drops back here.
	for {
		if !store.IsPresent() {
			if !authSurface(ctx, display, sessions) {
				display.PrintGoodbye()
				return
			}
		} else {
			if err := sessions.Bootstrap(ctx); err != nil {
				if sessions.Status() == session.StatusUnknown {
					display.PrintWarning(fmt.Sprintf("Could not verify session: %v", err))
					display.PrintInfo("Continuing with the stored credential")
				}
			}
			if !store.IsPresent() {
				// Bootstrap ended in a forced logout
				display.PrintWarning("Session expired, please sign in again")
				continue
			}
		}

		if !chatSurface(ctx, cfg, display, sessions, conv, sidebar, store) {
			display.PrintGoodbye()
			return
		}
	}
}

// parseFlags builds the configuration from defaults, environment and flags
func parseFlags() *config.Config {
	cfg := config.NewConfig()
	cfg.ApplyEnv()

	flag.StringVar(&cfg.APIBaseURL, "api-url", cfg.APIBaseURL, "Chat backend base URL")
	flag.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Enable verbose request logging")

	timeoutSeconds := flag.Int("timeout", int(cfg.RequestTimeout/time.Second), "Request timeout in seconds")

	flag.Parse()

	cfg.RequestTimeout = time.Duration(*timeoutSeconds) * time.Second
	return cfg
}

// authSurface runs the login/register flow until a session exists or the
// user quits. Returns false to exit the program.
func authSurface(ctx context.Context, display *ui.Display, sessions *session.Controller) bool {
	for {
		fmt.Println()
		display.PrintInfo("Sign in to continue: (l)ogin, (r)egister or (q)uit")
		fmt.Print("> ")

		choice, err := terminal.ReadUserInput()
		if err != nil {
			return false
		}

		switch strings.ToLower(choice) {
		case "q", "quit", "exit":
			return false
		case "l", "login":
			if loginFlow(ctx, display, sessions) {
				return true
			}
		case "r", "register":
			if registerFlow(ctx, display, sessions) {
				return true
			}
		}
	}
}

// loginFlow collects credentials and signs in. A failure keeps the user on
// the form with the error shown.
func loginFlow(ctx context.Context, display *ui.Display, sessions *session.Controller) bool {
	email, err := promptField("Email")
	if err != nil {
		return false
	}
	fmt.Print("Password: ")
	password, err := terminal.ReadPassword()
	if err != nil {
		return false
	}

	if err := sessions.Login(ctx, email, password); err != nil {
		display.PrintError(err)
		return false
	}

	display.PrintSuccess("Signed in")
	return true
}

// registerFlow collects the registration fields and creates an account
func registerFlow(ctx context.Context, display *ui.Display, sessions *session.Controller) bool {
	params := api.RegisterParams{}
	fields := []struct {
		label string
		dst   *string
	}{
		{"Full name", &params.FullName},
		{"Email", &params.Email},
		{"Position", &params.Position},
		{"Department", &params.Department},
		{"Position level", &params.PositionLevel},
	}
	for _, f := range fields {
		value, err := promptField(f.label)
		if err != nil {
			return false
		}
		*f.dst = value
	}

	fmt.Print("Password: ")
	password, err := terminal.ReadPassword()
	if err != nil {
		return false
	}
	params.Password = password

	if err := sessions.Register(ctx, params); err != nil {
		display.PrintError(err)
		return false
	}

	display.PrintSuccess("Account created")
	return true
}

func promptField(label string) (string, error) {
	fmt.Printf("%s: ", label)
	return terminal.ReadUserInput()
}

// chatSurface runs the conversation loop. Returns false to exit the program,
// true to fall back to the route gate (logout or expiry).
func chatSurface(ctx context.Context, cfg *config.Config, display *ui.Display, sessions *session.Controller, conv *conversation.Controller, sidebar *chatList, store *credentials.Store) bool {
	display.ClearScreen()
	display.PrintWelcome(sessions.User())

	if err := sidebar.Refresh(ctx); err != nil {
		display.PrintWarning(fmt.Sprintf("Failed to load chats: %v", err))
	}

	for {
		if !store.IsPresent() {
			display.PrintWarning("Session expired, please sign in again")
			return true
		}

		display.PrintPrompt(conv.Title())
		input, err := terminal.ReadUserInput()
		if err != nil {
			return false
		}
		if strings.TrimSpace(input) == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			switch handleCommand(ctx, cfg, input, display, sessions, conv, sidebar) {
			case actionExit:
				return false
			case actionSignOut:
				return true
			}
			continue
		}

		sendMessage(ctx, input, display, conv)
	}
}

type commandAction int

const (
	actionNone commandAction = iota
	actionExit
	actionSignOut
)

// handleCommand dispatches a slash command
func handleCommand(ctx context.Context, cfg *config.Config, input string, display *ui.Display, sessions *session.Controller, conv *conversation.Controller, sidebar *chatList) commandAction {
	parts := strings.Fields(input)
	cmd, args := parts[0], parts[1:]

	switch cmd {
	case "/exit", "/quit":
		return actionExit

	case "/clear":
		display.ClearScreen()
		display.PrintWelcome(sessions.User())

	case "/logout":
		sessions.Logout(ctx)
		display.PrintInfo("Signed out")
		return actionSignOut

	case "/me":
		display.PrintProfile(sessions.User())

	case "/chats":
		if err := sidebar.Refresh(ctx); err != nil {
			display.PrintError(err)
			break
		}
		chats := sidebar.Chats()
		if len(chats) > cfg.PageSize {
			chats = chats[:cfg.PageSize]
		}
		display.PrintChatList(chats, conv.ActiveChatID())

	case "/new":
		if err := conv.NewChat(); err != nil {
			display.PrintError(err)
		}

	case "/switch":
		chatID, ok := parseChatID(args, display)
		if !ok {
			break
		}
		chat, found := sidebar.Find(chatID)
		if !found {
			display.PrintWarning("No such chat - try /chats first")
			break
		}
		if err := conv.SwitchTo(ctx, chat); err != nil {
			display.PrintError(err)
			break
		}
		display.PrintTranscript(conv.Messages())

	case "/delete":
		chatID, ok := parseChatID(args, display)
		if !ok {
			break
		}
		if !terminal.Confirm("Are you sure you want to delete this chat?") {
			break
		}
		if err := conv.Delete(ctx, chatID); err != nil {
			display.PrintError(err)
			break
		}
		display.PrintSuccess("Chat deleted")

	case "/rename":
		if len(args) < 2 {
			display.PrintInfo("Usage: /rename <id> <new title>")
			break
		}
		chatID, ok := parseChatID(args[:1], display)
		if !ok {
			break
		}
		if err := conv.Rename(ctx, chatID, strings.Join(args[1:], " ")); err != nil {
			display.PrintError(err)
			break
		}
		display.PrintSuccess("Chat renamed")

	case "/history":
		display.PrintTranscript(conv.Messages())

	default:
		display.PrintInfo("Unknown command: " + cmd)
	}

	return actionNone
}

func parseChatID(args []string, display *ui.Display) (int64, bool) {
	if len(args) == 0 {
		display.PrintInfo("Usage: give a chat id, see /chats")
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		display.PrintWarning("Chat id must be a number")
		return 0, false
	}
	return id, true
}

// sendMessage runs one conversation turn
func sendMessage(ctx context.Context, content string, display *ui.Display, conv *conversation.Controller) {
	messages := conv.Messages()
	display.PrintThinking()

	if err := conv.Send(ctx, content); err != nil {
		switch {
		case errors.Is(err, conversation.ErrBusy):
			display.PrintWarning("Still generating the previous reply")
		case errors.Is(err, api.ErrSessionExpired):
			// The route gate picks this up on the next loop turn
			display.PrintWarning("Session expired")
		default:
			display.PrintError(err)
		}
		return
	}

	// Show everything the turn appended (user echo plus the reply)
	for _, msg := range conv.Messages()[len(messages):] {
		if msg.Role == "user" {
			display.PrintUserMessage(msg)
		} else {
			display.PrintAssistantMessage(msg)
		}
	}
}

// chatList mirrors the server-side chat list, playing the sidebar's role.
// It subscribes to conversation events so list and active state never diverge.
type chatList struct {
	client *api.Client

	mu    sync.RWMutex
	chats []api.ChatSummary
}

func newChatList(client *api.Client) *chatList {
	return &chatList{client: client}
}

// Refresh reloads the list from the backend
func (l *chatList) Refresh(ctx context.Context) error {
	chats, err := l.client.ListChats(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.chats = chats
	l.mu.Unlock()
	return nil
}

// Chats returns a copy of the list
func (l *chatList) Chats() []api.ChatSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]api.ChatSummary, len(l.chats))
	copy(out, l.chats)
	return out
}

// Clear drops the cached list when the session ends
func (l *chatList) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chats = nil
}

// Find looks a chat up by id
func (l *chatList) Find(chatID int64) (api.ChatSummary, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, chat := range l.chats {
		if chat.ID == chatID {
			return chat, true
		}
	}
	return api.ChatSummary{}, false
}

// ChatCreated implements conversation.Notifier
func (l *chatList) ChatCreated(chat api.ChatSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chats = append([]api.ChatSummary{chat}, l.chats...)
}

// ChatRenamed implements conversation.Notifier; renames in place, no re-fetch
func (l *chatList) ChatRenamed(chatID int64, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.chats {
		if l.chats[i].ID == chatID {
			l.chats[i].Name = name
			return
		}
	}
}

// ListChanged implements conversation.Notifier. The next explicit /chats
// refresh picks up the new ordering; nothing to do eagerly in a terminal UI.
func (l *chatList) ListChanged() {}
