package credentials

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// GateCookieName is the cookie mirrored alongside the stored token. Its
// presence for the API origin must track the token file's presence exactly;
// the login/chat route gate consults it through IsPresent.
const GateCookieName = "ragchat_token"

// Store holds the bearer token and persists it to two sinks: a plain token
// file and a gate cookie kept in the cookie jar shared with the HTTP client.
// The jar also carries the backend's refresh cookie between runs, which is
// why the jar contents are persisted next to the token.
type Store struct {
	tokenPath  string
	cookiePath string
	apiURL     *url.URL

	mu    sync.RWMutex
	token string
	jar   http.CookieJar
}

// persistedCookie is the on-disk form of one jar entry
type persistedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewStore creates a credential store rooted at the given paths and restores
// any previously persisted token and cookies.
func NewStore(tokenPath, cookiePath, apiBaseURL string) (*Store, error) {
	u, err := url.Parse(apiBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse API base URL: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	s := &Store{
		tokenPath:  tokenPath,
		cookiePath: cookiePath,
		apiURL:     u,
		jar:        jar,
	}

	s.restore()
	return s, nil
}

// restore loads the token file and persisted cookies, ignoring missing files
func (s *Store) restore() {
	if data, err := os.ReadFile(s.tokenPath); err == nil {
		s.token = strings.TrimSpace(string(data))
	}

	data, err := os.ReadFile(s.cookiePath)
	if err != nil {
		return
	}

	var cookies []persistedCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		// Corrupted file - drop it and start fresh
		os.Remove(s.cookiePath)
		return
	}

	restored := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		restored = append(restored, &http.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Path:    "/",
			Expires: time.Now().Add(24 * time.Hour),
		})
	}
	s.jar.SetCookies(s.apiURL, restored)
}

// Set persists the token to both sinks before returning
func (s *Store) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	s.jar.SetCookies(s.apiURL, []*http.Cookie{{
		Name:    GateCookieName,
		Value:   token,
		Path:    "/",
		Expires: time.Now().Add(24 * time.Hour),
	}})

	if err := s.saveCookiesUnlocked(); err != nil {
		return err
	}

	s.token = token
	return nil
}

// Token returns the current bearer token, if any
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// IsPresent reports whether a credential is currently held
func (s *Store) IsPresent() bool {
	_, ok := s.Token()
	return ok
}

// Clear removes the token from both sinks. Each removal is best-effort: a
// failure on one sink does not skip the other. The first error is returned.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error

	if err := os.Remove(s.tokenPath); err != nil && !os.IsNotExist(err) {
		firstErr = fmt.Errorf("failed to remove token file: %w", err)
	}

	// An expired cookie overwrites the live one and drops out of the jar
	s.jar.SetCookies(s.apiURL, []*http.Cookie{{
		Name:    GateCookieName,
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0),
		MaxAge:  -1,
	}})

	if err := s.saveCookiesUnlocked(); err != nil && firstErr == nil {
		firstErr = err
	}

	s.token = ""
	return firstErr
}

// GateCookie returns the gate cookie currently held for the API origin, if any
func (s *Store) GateCookie() (*http.Cookie, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.jar.Cookies(s.apiURL) {
		if c.Name == GateCookieName {
			return c, true
		}
	}
	return nil, false
}

// SetCookies implements http.CookieJar. Cookies set by backend responses
// (notably the refresh cookie) land here and are persisted to disk.
func (s *Store) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jar.SetCookies(u, cookies)
	// Persistence here is best-effort; request handling must not fail on it
	_ = s.saveCookiesUnlocked()
}

// Cookies implements http.CookieJar
func (s *Store) Cookies(u *url.URL) []*http.Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jar.Cookies(u)
}

// saveCookiesUnlocked persists the jar's API-origin cookies (must be called with lock held)
func (s *Store) saveCookiesUnlocked() error {
	current := s.jar.Cookies(s.apiURL)
	cookies := make([]persistedCookie, 0, len(current))
	for _, c := range current {
		cookies = append(cookies, persistedCookie{Name: c.Name, Value: c.Value})
	}

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}

	if err := writeFileAtomic(s.cookiePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	return nil
}

// writeFileAtomic writes via a temp file and rename so readers never observe
// a partial write
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, perm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
