package api

// tokenResponse is the body returned by the credential-issuing endpoints
type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// UserProfile is the identity returned by GET /auth/me
type UserProfile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
	Position      string `json:"position"`
	Department    string `json:"department"`
	PositionLevel string `json:"position_level"`
}

// RegisterParams holds the fields for POST /auth/register
type RegisterParams struct {
	FullName      string `json:"full_name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Position      string `json:"position"`
	Department    string `json:"department"`
	PositionLevel string `json:"position_level"`
}

// ChatSummary is one entry of the user's chat list
type ChatSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// createChatResponse is the body returned by POST /chat/chats
type createChatResponse struct {
	SessionID int64  `json:"session_id"`
	Name      string `json:"name"`
}

// renameRequest is the body for PUT /chat/chats/{id}/rename
type renameRequest struct {
	NewName string `json:"new_name"`
}

// MessageRecord is one stored message as returned by the history endpoint.
// Links and Titles are parallel sequences naming retrieved source documents
// for assistant replies; absent or empty means no sources.
type MessageRecord struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Links   []string `json:"links,omitempty"`
	Titles  []string `json:"titles,omitempty"`
}

// askRequest is the body for POST /chat/chats/{id}/ask
type askRequest struct {
	Query string `json:"query"`
}

// AskResponse carries the assistant's reply. SessionName is set when the
// backend computed a new title for the chat as a side effect of answering.
type AskResponse struct {
	Answer      string   `json:"answer"`
	Links       []string `json:"links"`
	Titles      []string `json:"titles"`
	SessionName string   `json:"session_name"`
}

// errorBody is the structured error payload on non-2xx responses
type errorBody struct {
	Detail string `json:"detail"`
}
