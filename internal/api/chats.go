package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// CreateChat creates a new chat server-side. The backend may pick its own
// name; fallbackName is used when it returns none.
func (c *Client) CreateChat(ctx context.Context, fallbackName string) (ChatSummary, error) {
	var created createChatResponse
	if err := c.call(ctx, http.MethodPost, "/chat/chats", "", nil, &created); err != nil {
		return ChatSummary{}, err
	}

	name := created.Name
	if name == "" {
		name = fallbackName
	}
	return ChatSummary{ID: created.SessionID, Name: name}, nil
}

// ListChats returns the user's chats
func (c *Client) ListChats(ctx context.Context) ([]ChatSummary, error) {
	var chats []ChatSummary
	if err := c.call(ctx, http.MethodGet, "/chat/chats", "", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// DeleteChat removes a chat and its messages
func (c *Client) DeleteChat(ctx context.Context, chatID int64) error {
	return c.call(ctx, http.MethodDelete, fmt.Sprintf("/chat/chats/%d", chatID), "", nil, nil)
}

// RenameChat sets a new name for the chat and returns the updated summary
func (c *Client) RenameChat(ctx context.Context, chatID int64, newName string) (ChatSummary, error) {
	payload, err := json.Marshal(renameRequest{NewName: newName})
	if err != nil {
		return ChatSummary{}, fmt.Errorf("failed to marshal rename: %w", err)
	}

	var renamed ChatSummary
	if err := c.call(ctx, http.MethodPut, fmt.Sprintf("/chat/chats/%d/rename", chatID), "application/json", payload, &renamed); err != nil {
		return ChatSummary{}, err
	}
	return renamed, nil
}

// Messages fetches the full message history of a chat
func (c *Client) Messages(ctx context.Context, chatID int64) ([]MessageRecord, error) {
	var records []MessageRecord
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/chat/chats/%d/messages", chatID), "", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Ask submits a query to the chat and waits for the assistant's reply
func (c *Client) Ask(ctx context.Context, chatID int64, query string) (*AskResponse, error) {
	payload, err := json.Marshal(askRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	var reply AskResponse
	if err := c.call(ctx, http.MethodPost, fmt.Sprintf("/chat/chats/%d/ask", chatID), "application/json", payload, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}
