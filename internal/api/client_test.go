package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/credentials"
)

const testTimeout = 0 // no client timeout in tests; contexts bound the calls

// newTestClient wires a client and store against the given handler
func newTestClient(t *testing.T, handler http.Handler) (*Client, *credentials.Store) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	store, err := credentials.NewStore(
		filepath.Join(dir, "token"),
		filepath.Join(dir, "cookies.json"),
		server.URL,
	)
	require.NoError(t, err)

	return NewClient(server.URL, testTimeout, store), store
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestCall_AttachesBearerToken(t *testing.T) {
	var sawAuth atomic.Value
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth.Store(r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, UserProfile{Email: "a@b.c"})
	})

	client, store := newTestClient(t, handler)
	require.NoError(t, store.Set("abc"))

	profile, err := client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", profile.Email)
	assert.Equal(t, "Bearer abc", sawAuth.Load())
}

// TestRefresh_SingleFlight verifies that N requests failing with 401 at the
// same time share exactly one refresh call, and that every retry carries the
// refreshed token.
func TestRefresh_SingleFlight(t *testing.T) {
	const callers = 10

	var refreshCount atomic.Int32
	var freshRetries atomic.Int32

	// The refresh handler waits until every caller has received its 401,
	// forcing all refresh attempts to overlap the one in flight.
	var staleSeen sync.WaitGroup
	staleSeen.Add(callers)

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer fresh-token" {
			freshRetries.Add(1)
			writeJSON(w, http.StatusOK, UserProfile{Email: "a@b.c"})
			return
		}
		staleSeen.Done()
		writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "token expired"})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		staleSeen.Wait()
		// Give the last 401 recipients time to join the in-flight refresh
		time.Sleep(50 * time.Millisecond)
		refreshCount.Add(1)
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: "fresh-token"})
	})

	client, store := newTestClient(t, mux)
	require.NoError(t, store.Set("stale-token"))

	var wg sync.WaitGroup
	errCh := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Me(context.Background())
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), refreshCount.Load(), "concurrent 401s must share one refresh")
	assert.Equal(t, int32(callers), freshRetries.Load(), "every retry must carry the new token")

	token, ok := store.Token()
	require.True(t, ok)
	assert.Equal(t, "fresh-token", token)
}

// TestCall_NoInfiniteRetry verifies that a request 401ing again after a
// successful refresh surfaces ErrAuthFailed without a second refresh.
func TestCall_NoInfiniteRetry(t *testing.T) {
	var refreshCount, askCount atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/chat/chats/1/ask", func(w http.ResponseWriter, r *http.Request) {
		askCount.Add(1)
		writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "nope"})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCount.Add(1)
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: "new-token"})
	})

	client, store := newTestClient(t, mux)
	require.NoError(t, store.Set("old-token"))

	_, err := client.Ask(context.Background(), 1, "hello")
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, int32(1), refreshCount.Load())
	assert.Equal(t, int32(2), askCount.Load(), "original request is retried exactly once")

	// Only a failed refresh clears the store
	assert.True(t, store.IsPresent())
}

func TestCall_AuthEndpointNeverTriggersRefresh(t *testing.T) {
	var refreshCount atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "a@b.c", r.PostForm.Get("username"))
		writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "bad credentials"})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCount.Add(1)
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: "x"})
	})

	client, _ := newTestClient(t, mux)

	err := client.Login(context.Background(), "a@b.c", "wrong")
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Contains(t, err.Error(), "bad credentials")
	assert.Equal(t, int32(0), refreshCount.Load(), "login 401 must not start a refresh")
}

func TestCall_RefreshFailureEndsSession(t *testing.T) {
	var refreshCount atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "token expired"})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCount.Add(1)
		writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "refresh expired"})
	})

	client, store := newTestClient(t, mux)
	require.NoError(t, store.Set("stale"))

	var hookFired atomic.Bool
	client.SetExpiryHook(func() { hookFired.Store(true) })

	_, err := client.Me(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int32(1), refreshCount.Load())
	assert.True(t, hookFired.Load(), "expiry hook must run on forced logout")
	assert.False(t, store.IsPresent(), "failed refresh must clear the store")
}

func TestCall_DecodesStructuredError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, errorBody{Detail: "email already registered"})
	})

	client, _ := newTestClient(t, handler)

	err := client.Register(context.Background(), RegisterParams{Email: "a@b.c"})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusConflict, reqErr.Status)
	assert.Equal(t, "email already registered", reqErr.Detail)
}

func TestCall_TransportFailureIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	dir := t.TempDir()
	store, err := credentials.NewStore(
		filepath.Join(dir, "token"),
		filepath.Join(dir, "cookies.json"),
		server.URL,
	)
	require.NoError(t, err)
	client := NewClient(server.URL, testTimeout, store)
	server.Close()

	_, err = client.Me(context.Background())
	assert.True(t, IsNetwork(err), "expected a network error, got %v", err)
	assert.NotErrorIs(t, err, ErrAuthFailed)
}

func TestLogin_StoresTokenInBothSinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: "issued-token"})
	})

	client, store := newTestClient(t, mux)

	require.NoError(t, client.Login(context.Background(), "a@b.c", "pw"))

	token, ok := store.Token()
	require.True(t, ok)
	assert.Equal(t, "issued-token", token)

	cookie, ok := store.GateCookie()
	require.True(t, ok)
	assert.Equal(t, "issued-token", cookie.Value)
}

func TestCreateChat_FallsBackToDerivedName(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/chats", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": 42, "name": nil})
	})

	client, store := newTestClient(t, mux)
	require.NoError(t, store.Set("tok"))

	chat, err := client.CreateChat(context.Background(), "Explain X")
	require.NoError(t, err)
	assert.Equal(t, int64(42), chat.ID)
	assert.Equal(t, "Explain X", chat.Name)
}

func TestAsk_CarriesQueryAndDecodesSources(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/chats/7/ask", func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Explain X", req.Query)
		writeJSON(w, http.StatusOK, AskResponse{
			Answer:      "X is...",
			Links:       []string{"https://kb/doc1"},
			Titles:      []string{"Doc One"},
			SessionName: "About X",
		})
	})

	client, store := newTestClient(t, mux)
	require.NoError(t, store.Set("tok"))

	reply, err := client.Ask(context.Background(), 7, "Explain X")
	require.NoError(t, err)
	assert.Equal(t, "X is...", reply.Answer)
	assert.Equal(t, []string{"https://kb/doc1"}, reply.Links)
	assert.Equal(t, []string{"Doc One"}, reply.Titles)
	assert.Equal(t, "About X", reply.SessionName)
}

func TestRenameChat(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/chats/3/rename", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var req renameRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, http.StatusOK, ChatSummary{ID: 3, Name: req.NewName})
	})

	client, store := newTestClient(t, mux)
	require.NoError(t, store.Set("tok"))

	renamed, err := client.RenameChat(context.Background(), 3, "Better Title")
	require.NoError(t, err)
	assert.Equal(t, ChatSummary{ID: 3, Name: "Better Title"}, renamed)
}

func TestIsAuthEndpoint(t *testing.T) {
	assert.True(t, isAuthEndpoint("/auth/login"))
	assert.True(t, isAuthEndpoint("/auth/register"))
	assert.True(t, isAuthEndpoint("/auth/refresh"))
	assert.False(t, isAuthEndpoint("/auth/me"))
	assert.False(t, isAuthEndpoint("/chat/chats"))
}

// TestReadResponse_SizeLimit checks the boundary: a body of exactly the
// maximum size is valid, one byte more is rejected.
func TestReadResponse_SizeLimit(t *testing.T) {
	atLimit := &http.Response{Body: io.NopCloser(bytes.NewReader(make([]byte, MaxResponseSize)))}
	body, err := readResponse(atLimit)
	require.NoError(t, err)
	assert.Len(t, body, MaxResponseSize)

	overLimit := &http.Response{Body: io.NopCloser(bytes.NewReader(make([]byte, MaxResponseSize+1)))}
	_, err = readResponse(overLimit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded maximum size")
}

func TestErrors_Taxonomy(t *testing.T) {
	reqErr := &RequestError{Status: 500, Detail: "boom"}
	assert.Contains(t, reqErr.Error(), "boom")
	assert.Contains(t, reqErr.Error(), "500")

	netErr := &NetworkError{Err: errors.New("connection refused")}
	assert.Contains(t, netErr.Error(), "connection refused")
	assert.True(t, IsNetwork(netErr))
	assert.False(t, IsNetwork(reqErr))
	assert.False(t, IsNetwork(nil))
}
