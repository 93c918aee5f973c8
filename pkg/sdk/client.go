// Package sdk wires the wayfarer client together: storage, tokens, the
// session, the authenticated gateway with its refresh coordinator, and the
// endpoint clients built on it.
package sdk

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/wayfarer/internal/api"
	"github.com/wolfeidau/wayfarer/internal/collection"
	"github.com/wolfeidau/wayfarer/internal/config"
	"github.com/wolfeidau/wayfarer/internal/favorites"
	"github.com/wolfeidau/wayfarer/internal/gateway"
	"github.com/wolfeidau/wayfarer/internal/models"
	"github.com/wolfeidau/wayfarer/internal/refresh"
	"github.com/wolfeidau/wayfarer/internal/session"
	"github.com/wolfeidau/wayfarer/internal/storage"
	"github.com/wolfeidau/wayfarer/internal/tokenstore"
	"golang.org/x/time/rate"
)

// Client is a signed in (or anonymous) view of the tourism API.
type Client struct {
	Tokens    *tokenstore.Store
	Session   *session.Manager
	Gateway   *gateway.Gateway
	Auth      *api.Auth
	Places    *api.Places
	Chat      *api.Chat
	Favorites *favorites.Service

	kv          storage.KV
	coordinator *refresh.Coordinator
	unsubscribe func()

	// owner is the ID of the user the cached favorites belong to.
	mu    sync.Mutex
	owner string
}

// ClientOptions configures client construction.
type ClientOptions struct {
	KV         storage.KV
	HTTPClient *http.Client
	UserAgent  string
}

// ClientOption mutates ClientOptions.
type ClientOption func(*ClientOptions)

// WithStorage overrides the file storage in cfg.StorageDir.
func WithStorage(kv storage.KV) ClientOption {
	return func(opts *ClientOptions) {
		opts.KV = kv
	}
}

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(opts *ClientOptions) {
		opts.HTTPClient = client
	}
}

// WithUserAgent sets the User-Agent sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(opts *ClientOptions) {
		opts.UserAgent = ua
	}
}

// NewClient creates a client and restores any persisted session.
func NewClient(cfg *config.Config, optFns ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := ClientOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	kv := opts.KV
	if kv == nil {
		fileKV, err := storage.NewFileKV(cfg.StorageDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		kv = fileKV
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = gateway.NewHTTPClient(gateway.TransportConfig{
			Timeout:     cfg.RequestTimeout,
			CacheDir:    cfg.HTTPCacheDir,
			LogRequests: cfg.Debug,
		})
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	tokens := tokenstore.New(kv)

	gw, err := gateway.New(gateway.Config{
		BaseURL:    cfg.ServerURL,
		HTTPClient: httpClient,
		Limiter:    limiter,
		UserAgent:  opts.UserAgent,
	}, tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	auth := api.NewAuth(gw)
	sess := session.NewManager(tokens, kv, auth)
	coordinator := refresh.NewCoordinator(tokens, sess, auth, refresh.WithTimeout(cfg.RefreshTimeout))
	gw.SetRefresher(coordinator)

	favs := favorites.NewService(api.NewFavorites(gw), kv,
		collection.WithTTL(cfg.CacheTTL),
		collection.WithRevalidateAfter(cfg.RevalidateAfter),
	)

	c := &Client{
		Tokens:      tokens,
		Session:     sess,
		Gateway:     gw,
		Auth:        auth,
		Places:      api.NewPlaces(gw),
		Chat:        api.NewChat(gw),
		Favorites:   favs,
		kv:          kv,
		coordinator: coordinator,
	}

	// a restored anonymous session must not see a previous user's favorites
	if restored := sess.Snapshot(); restored.User != nil {
		c.owner = restored.User.ID
	} else {
		favs.Invalidate()
	}
	c.unsubscribe = sess.Subscribe(c.onSessionChange)

	return c, nil
}

// Login signs in with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*models.User, error) {
	return c.Session.Login(ctx, models.Credentials{Email: email, Password: password})
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, input models.RegisterInput) (*models.User, error) {
	return c.Session.Register(ctx, input)
}

// Logout signs out. The local session is always cleared.
func (c *Client) Logout(ctx context.Context) {
	c.Session.Logout(ctx)
}

// Current returns a snapshot of the session.
func (c *Client) Current() models.Session {
	return c.Session.Snapshot()
}

// RefreshInFlight reports whether a token refresh is running.
func (c *Client) RefreshInFlight() bool {
	return c.coordinator.InFlight()
}

// Close stops listening for session changes and waits for background
// cache refreshes.
func (c *Client) Close() {
	c.unsubscribe()
	c.Favorites.Wait()
}

func (c *Client) onSessionChange(s models.Session) {
	c.mu.Lock()
	prev := c.owner
	switch {
	case s.Status == models.StatusAnonymous:
		c.owner = ""
	case s.User != nil:
		c.owner = s.User.ID
	}
	owner := c.owner
	c.mu.Unlock()

	if prev == owner {
		return
	}

	if s.Status == models.StatusAnonymous {
		log.Debug().Msg("session ended, dropping cached favorites")
	} else {
		log.Debug().Str("user_id", owner).Msg("user changed, dropping cached favorites")
	}
	c.Favorites.Invalidate()
}
