package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const formContentType = "application/x-www-form-urlencoded"

// Login exchanges credentials for a bearer token and stores it. The backend
// takes the login form-encoded with the email in the username field.
func (c *Client) Login(ctx context.Context, email, password string) error {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	var tok tokenResponse
	if err := c.call(ctx, http.MethodPost, "/auth/login", formContentType, []byte(form.Encode()), &tok); err != nil {
		return err
	}

	if err := c.store.Set(tok.AccessToken); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// Register creates an account, then stores the returned bearer token
func (c *Client) Register(ctx context.Context, params RegisterParams) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal registration: %w", err)
	}

	var tok tokenResponse
	if err := c.call(ctx, http.MethodPost, "/auth/register", "application/json", payload, &tok); err != nil {
		return err
	}

	if err := c.store.Set(tok.AccessToken); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// Logout asks the backend to revoke the session. Local credential cleanup is
// the session controller's job and must happen even when this call fails.
func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/auth/logout", "", nil, nil)
}

// Me fetches the authenticated user's profile
func (c *Client) Me(ctx context.Context) (*UserProfile, error) {
	var profile UserProfile
	if err := c.call(ctx, http.MethodGet, "/auth/me", "", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
