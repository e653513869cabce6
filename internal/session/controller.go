// Package session owns the "is a user known" state built on top of the
// authenticated gateway: login, registration, logout, and the startup check.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"ragchat/internal/api"
	"ragchat/internal/credentials"
)

// Status describes what the controller knows about the current user
type Status int

const (
	// StatusSignedOut means no usable credential is held
	StatusSignedOut Status = iota

	// StatusSignedIn means the profile was fetched with the held credential
	StatusSignedIn

	// StatusUnknown means a credential is held but the profile could not be
	// fetched for a reason other than an authorization failure (for example
	// a transport error). The credential is kept; the user may still be
	// signed in once connectivity returns.
	StatusUnknown
)

// Controller exposes the session lifecycle operations
type Controller struct {
	client *api.Client
	store  *credentials.Store
	logger *zap.Logger

	mu      sync.RWMutex
	user    *api.UserProfile
	loading bool
	lastErr error
	status  Status

	// onSignedOut is invoked whenever the session ends, voluntarily or not;
	// the route gate uses it to fall back to the login surface
	onSignedOut func()
}

// NewController creates a session controller and registers itself as the
// gateway's forced-logout handler.
func NewController(client *api.Client, store *credentials.Store) *Controller {
	c := &Controller{
		client: client,
		store:  store,
		logger: zap.NewNop(),
		status: StatusSignedOut,
	}
	client.SetExpiryHook(c.handleExpiry)
	return c
}

// WithLogger sets the logger
func (c *Controller) WithLogger(logger *zap.Logger) *Controller {
	c.logger = logger
	return c
}

// SetSignedOutHandler registers the callback run when the session ends
func (c *Controller) SetSignedOutHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSignedOut = fn
}

// handleExpiry runs after the gateway cleared the credential store because a
// refresh failed. Local state catches up here; navigation happens in the
// registered handler.
func (c *Controller) handleExpiry() {
	c.mu.Lock()
	c.user = nil
	c.status = StatusSignedOut
	fn := c.onSignedOut
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Login authenticates with the backend and populates the user profile.
// On failure the user stays absent, the error is recorded for display, and
// the same error is returned so the calling form can react in place.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	c.setLoading(true)
	defer c.setLoading(false)

	if err := c.client.Login(ctx, email, password); err != nil {
		c.fail(err)
		return err
	}
	return c.adoptProfile(ctx)
}

// Register creates an account and signs the new user in. Same contract as Login.
func (c *Controller) Register(ctx context.Context, params api.RegisterParams) error {
	c.setLoading(true)
	defer c.setLoading(false)

	if err := c.client.Register(ctx, params); err != nil {
		c.fail(err)
		return err
	}
	return c.adoptProfile(ctx)
}

// adoptProfile fetches the profile for a freshly issued token
func (c *Controller) adoptProfile(ctx context.Context) error {
	profile, err := c.client.Me(ctx)
	if err != nil {
		c.fail(err)
		return err
	}

	c.mu.Lock()
	c.user = profile
	c.status = StatusSignedIn
	c.lastErr = nil
	c.mu.Unlock()
	return nil
}

// Logout revokes the session server-side on a best-effort basis, then clears
// local state unconditionally.
func (c *Controller) Logout(ctx context.Context) {
	if err := c.client.Logout(ctx); err != nil && !errors.Is(err, api.ErrSessionExpired) {
		c.logger.Warn("logout revoke failed", zap.Error(err))
	}

	if err := c.store.Clear(); err != nil {
		c.logger.Warn("failed to clear credentials", zap.Error(err))
	}

	c.mu.Lock()
	c.user = nil
	c.status = StatusSignedOut
	c.lastErr = nil
	fn := c.onSignedOut
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Bootstrap runs the startup check: if a credential is present, try to fetch
// the profile. A failure that is not an authorization failure leaves the
// credential alone and reports StatusUnknown, so transient connectivity loss
// never punishes a stored session. Authorization failures are resolved inside
// the gateway (refresh, or forced logout when the refresh fails).
func (c *Controller) Bootstrap(ctx context.Context) error {
	if !c.store.IsPresent() {
		c.mu.Lock()
		c.status = StatusSignedOut
		c.mu.Unlock()
		return nil
	}

	c.setLoading(true)
	defer c.setLoading(false)

	profile, err := c.client.Me(ctx)
	if err != nil {
		if errors.Is(err, api.ErrSessionExpired) {
			// handleExpiry already ran
			return nil
		}
		c.mu.Lock()
		c.status = StatusUnknown
		c.lastErr = err
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.user = profile
	c.status = StatusSignedIn
	c.lastErr = nil
	c.mu.Unlock()
	return nil
}

// fail records a failure without touching the user
func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Controller) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
}

// User returns the profile, or nil when no user is known
func (c *Controller) User() *api.UserProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// Status returns the current session status
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Loading reports whether a session operation is in flight
func (c *Controller) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Err returns the last recorded failure, if any
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}
