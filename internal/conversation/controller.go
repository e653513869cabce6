// Package conversation manages the active chat: the ordered message list,
// lazy server-side chat creation, optimistic sends with rollback, and the
// generation lock that keeps chat switching, deletion and renaming out of a
// turn in progress.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ragchat/internal/api"
)

// DefaultTitle is shown while no chat is active
const DefaultTitle = "New Chat"

// deriveTitleRunes is how much of the first message seeds a new chat's title
const deriveTitleRunes = 30

// ErrBusy is returned when an operation is rejected because a reply is being
// generated
var ErrBusy = errors.New("a reply is being generated")

// Message is one entry of the conversation transcript. Client-synthesized
// ids carry a "local-" prefix and are never persisted; ids reconstructed
// from server history use the "<chatID>-<index>" form.
type Message struct {
	ID        string
	ChatID    int64
	Role      string
	Content   string
	Links     []string
	Titles    []string
	CreatedAt time.Time
}

// Notifier receives chat-list side effects so the list and the active chat
// never diverge. Implementations must be cheap; calls happen after the
// controller state is already updated.
type Notifier interface {
	// ChatCreated fires when sending created a chat implicitly
	ChatCreated(chat api.ChatSummary)

	// ChatRenamed fires when a chat's title changed, including
	// server-computed titles returned with a reply
	ChatRenamed(chatID int64, name string)

	// ListChanged fires when list ordering or membership may have changed
	ListChanged()
}

// Controller is the conversation state machine
type Controller struct {
	client   *api.Client
	notifier Notifier

	mu             sync.Mutex
	activeChatID   int64 // 0 means no active chat
	title          string
	messages       []Message
	loadingHistory bool
	generating     bool

	// suppressNextLoad marks the transition after an implicit chat creation:
	// the messages are already known locally, so the next switch to that
	// chat must not refetch history
	suppressNextLoad bool
}

// NewController creates a conversation controller in the no-active-chat state
func NewController(client *api.Client, notifier Notifier) *Controller {
	return &Controller{
		client:   client,
		notifier: notifier,
		title:    DefaultTitle,
	}
}

// newLocalID synthesizes a client-side message id. The prefix keeps the id
// space disjoint from server-assigned numeric ids, so rollback-by-id stays
// unambiguous under fast consecutive sends.
func newLocalID() string {
	return "local-" + uuid.NewString()
}

// deriveTitle truncates the first message into a chat title
func deriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= deriveTitleRunes {
		return content
	}
	return string(runes[:deriveTitleRunes]) + "..."
}

// Send submits content to the active chat, creating the chat first when none
// is active. The user message appears immediately and is rolled back by its
// synthesized id on any failure. The generation lock is released on every
// path, after the transcript has settled.
func (c *Controller) Send(ctx context.Context, content string) error {
	c.mu.Lock()
	if c.generating {
		c.mu.Unlock()
		return ErrBusy
	}

	localID := newLocalID()
	c.messages = append(c.messages, Message{
		ID:        localID,
		ChatID:    c.activeChatID,
		Role:      "user",
		Content:   content,
		CreatedAt: time.Now(),
	})
	c.generating = true
	chatID := c.activeChatID
	c.mu.Unlock()

	var createdChat *api.ChatSummary
	if chatID == 0 {
		created, err := c.client.CreateChat(ctx, deriveTitle(content))
		if err != nil {
			c.rollback(localID)
			return fmt.Errorf("failed to create chat: %w", err)
		}

		c.mu.Lock()
		c.activeChatID = created.ID
		c.title = created.Name
		c.suppressNextLoad = true
		// The optimistic message was appended before the chat existed
		for i := range c.messages {
			if c.messages[i].ID == localID {
				c.messages[i].ChatID = created.ID
			}
		}
		c.mu.Unlock()

		chatID = created.ID
		createdChat = &created
	}

	reply, err := c.client.Ask(ctx, chatID, content)
	if err != nil {
		// The chat, if one was just created, exists server-side and stays
		// adopted; only the optimistic message is withdrawn.
		c.rollback(localID)
		if createdChat != nil && c.notifier != nil {
			c.notifier.ChatCreated(*createdChat)
		}
		return err
	}

	c.mu.Lock()
	c.messages = append(c.messages, Message{
		ID:        newLocalID(),
		ChatID:    chatID,
		Role:      "assistant",
		Content:   reply.Answer,
		Links:     reply.Links,
		Titles:    reply.Titles,
		CreatedAt: time.Now(),
	})
	renamed := ""
	if reply.SessionName != "" && reply.SessionName != c.title {
		c.title = reply.SessionName
		renamed = reply.SessionName
	}
	c.generating = false
	c.mu.Unlock()

	if c.notifier != nil {
		if createdChat != nil {
			c.notifier.ChatCreated(*createdChat)
		}
		if renamed != "" {
			c.notifier.ChatRenamed(chatID, renamed)
		}
		// The backend orders chats by last activity
		c.notifier.ListChanged()
	}
	return nil
}

// rollback removes the optimistic message and releases the generation lock
// in one step, so the withdrawal is visible before sending is re-enabled
func (c *Controller) rollback(localID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.messages[:0]
	for _, m := range c.messages {
		if m.ID != localID {
			kept = append(kept, m)
		}
	}
	c.messages = kept
	c.generating = false
}

// SwitchTo makes the given chat active and loads its full history, replacing
// the transcript. Switching to the chat just created by Send skips the fetch;
// its messages are already known locally.
func (c *Controller) SwitchTo(ctx context.Context, chat api.ChatSummary) error {
	c.mu.Lock()
	if c.generating {
		c.mu.Unlock()
		return ErrBusy
	}

	if c.suppressNextLoad && chat.ID == c.activeChatID {
		c.suppressNextLoad = false
		c.title = chat.Name
		c.mu.Unlock()
		return nil
	}

	c.activeChatID = chat.ID
	c.title = chat.Name
	c.suppressNextLoad = false
	c.loadingHistory = true
	c.mu.Unlock()

	records, err := c.client.Messages(ctx, chat.ID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadingHistory = false
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	messages := make([]Message, 0, len(records))
	for i, r := range records {
		messages = append(messages, Message{
			ID:      fmt.Sprintf("%d-%d", chat.ID, i),
			ChatID:  chat.ID,
			Role:    r.Role,
			Content: r.Content,
			Links:   r.Links,
			Titles:  r.Titles,
		})
	}
	c.messages = messages
	return nil
}

// NewChat returns to the no-active-chat state
func (c *Controller) NewChat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generating {
		return ErrBusy
	}

	c.activeChatID = 0
	c.title = DefaultTitle
	c.messages = nil
	c.loadingHistory = false
	c.suppressNextLoad = false
	return nil
}

// Reset drops all conversation state. It runs when the session ends, so a
// later sign-in, possibly by a different user, never inherits the previous
// session's transcript or active chat. Unlike NewChat it ignores the
// generation lock; there is no session left for an in-flight turn to land in.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activeChatID = 0
	c.title = DefaultTitle
	c.messages = nil
	c.loadingHistory = false
	c.generating = false
	c.suppressNextLoad = false
}

// Delete removes a chat. Deleting the active chat resets to the
// no-active-chat state.
func (c *Controller) Delete(ctx context.Context, chatID int64) error {
	c.mu.Lock()
	if c.generating {
		c.mu.Unlock()
		return ErrBusy
	}
	c.mu.Unlock()

	if err := c.client.DeleteChat(ctx, chatID); err != nil {
		return err
	}

	c.mu.Lock()
	if c.activeChatID == chatID {
		c.activeChatID = 0
		c.title = DefaultTitle
		c.messages = nil
		c.suppressNextLoad = false
	}
	c.mu.Unlock()

	if c.notifier != nil {
		c.notifier.ListChanged()
	}
	return nil
}

// Rename sets a new title for a chat
func (c *Controller) Rename(ctx context.Context, chatID int64, name string) error {
	c.mu.Lock()
	if c.generating {
		c.mu.Unlock()
		return ErrBusy
	}
	c.mu.Unlock()

	renamed, err := c.client.RenameChat(ctx, chatID, name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.activeChatID == chatID {
		c.title = renamed.Name
	}
	c.mu.Unlock()

	if c.notifier != nil {
		c.notifier.ChatRenamed(chatID, renamed.Name)
	}
	return nil
}

// Messages returns a copy of the transcript
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// ActiveChatID returns the active chat id, 0 when none
func (c *Controller) ActiveChatID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeChatID
}

// Title returns the active chat's title
func (c *Controller) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title
}

// Generating reports whether a reply is being generated
func (c *Controller) Generating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generating
}

// LoadingHistory reports whether a history fetch is in flight
func (c *Controller) LoadingHistory() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadingHistory
}
