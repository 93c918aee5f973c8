// Package refresh coordinates access token refreshes so that any number of
// concurrently failing requests trigger exactly one refresh call.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/wayfarer/internal/models"
	"github.com/wolfeidau/wayfarer/internal/telemetry"
	"github.com/wolfeidau/wayfarer/internal/tokenstore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const defaultTimeout = 15 * time.Second

var (
	// ErrAuthExpired is returned to every caller when the session could not be refreshed.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrNoRefreshToken is the cause when no refresh token is stored.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrInvalidRefreshResponse is the cause when the server omits the access token.
	ErrInvalidRefreshResponse = errors.New("invalid refresh response")

	// ErrSessionChanged is the cause when the session was cleared or replaced
	// while the refresh was in flight. The refreshed tokens are discarded.
	ErrSessionChanged = errors.New("session changed during refresh")
)

// Refresher exchanges a refresh token for a new token pair.
// Implementations must not route through the 401 handling of the gateway.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
}

// Session is the part of the session state machine driven by refreshes.
type Session interface {
	BeginRefresh()
	ApplyRefreshed(sent, access, refresh string) bool
	Expire(cause error)
}

type outcome struct {
	token string
	err   error
}

// waiter is a caller parked on the in-flight refresh. It receives exactly one outcome.
type waiter struct {
	ch chan outcome
}

func newWaiter() *waiter {
	return &waiter{ch: make(chan outcome, 1)}
}

func (w *waiter) wait(ctx context.Context) (string, error) {
	select {
	case out := <-w.ch:
		return out.token, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Coordinator is a single-flight gate around the refresh call.
type Coordinator struct {
	tokens    *tokenstore.Store
	session   Session
	refresher Refresher
	timeout   time.Duration
	metrics   *telemetry.Metrics

	// mu guards inFlight and waiters. waiters is only non-empty while inFlight
	// and is detached in the same critical section that clears inFlight.
	mu       sync.Mutex
	inFlight bool
	waiters  []*waiter
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout bounds the refresh call. Defaults to 15 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithMetrics overrides the metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// NewCoordinator creates a refresh coordinator.
func NewCoordinator(tokens *tokenstore.Store, session Session, refresher Refresher, opts ...Option) *Coordinator {
	c := &Coordinator{
		tokens:    tokens,
		session:   session,
		refresher: refresher,
		timeout:   defaultTimeout,
		metrics:   telemetry.GetMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestRefresh returns an access token newer than staleToken.
//
// If a refresh is in flight the caller waits for its outcome. If a refresh has
// already replaced staleToken the stored token is returned without a network
// call. Otherwise exactly one refresh is started. On failure every caller gets
// an error wrapping ErrAuthExpired and the session has been cleared.
//
// Cancelling ctx stops this caller waiting; it does not cancel the shared refresh.
func (c *Coordinator) RequestRefresh(ctx context.Context, staleToken string) (string, error) {
	w := newWaiter()

	c.mu.Lock()
	if c.inFlight {
		c.waiters = append(c.waiters, w)
		c.mu.Unlock()

		c.metrics.RefreshCoalescedTotal.Add(ctx, 1)
		log.Debug().Msg("waiting on in-flight token refresh")

		return w.wait(ctx)
	}

	if current := c.tokens.Get(tokenstore.Access); current != "" && current != staleToken {
		c.mu.Unlock()
		log.Debug().Msg("token already refreshed")
		return current, nil
	}

	c.inFlight = true
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	go c.run(context.WithoutCancel(ctx))

	return w.wait(ctx)
}

// InFlight reports whether a refresh is currently running.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

func (c *Coordinator) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.metrics.RefreshAttemptsTotal.Add(ctx, 1)

	start := time.Now()
	token, err := c.refresh(ctx)
	if err != nil {
		c.metrics.RefreshFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", failureCause(err))))
		if errors.Is(err, ErrSessionChanged) {
			log.Debug().Dur("elapsed", time.Since(start)).Msg("session changed during token refresh, result discarded")
			c.settle(outcome{err: fmt.Errorf("%w: %w", ErrAuthExpired, err)})
			return
		}
		log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("token refresh failed, session cleared")
		c.session.Expire(err)
		c.settle(outcome{err: fmt.Errorf("%w: %w", ErrAuthExpired, err)})
		return
	}

	log.Debug().Dur("elapsed", time.Since(start)).Msg("token refreshed")
	c.settle(outcome{token: token})
}

func (c *Coordinator) refresh(ctx context.Context) (string, error) {
	refreshToken := c.tokens.Get(tokenstore.Refresh)
	if refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	c.session.BeginRefresh()

	pair, err := c.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if pair == nil || pair.AccessToken == "" {
		return "", ErrInvalidRefreshResponse
	}

	if !c.session.ApplyRefreshed(refreshToken, pair.AccessToken, pair.RefreshToken) {
		return "", ErrSessionChanged
	}

	return pair.AccessToken, nil
}

// settle clears inFlight, detaches the waiters and delivers out to each in
// arrival order. Sends never block as each waiter channel is buffered.
func (c *Coordinator) settle(out outcome) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.inFlight = false
	c.mu.Unlock()

	for _, w := range waiters {
		w.ch <- out
	}
}

// pending returns the number of parked callers.
func (c *Coordinator) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func failureCause(err error) string {
	switch {
	case errors.Is(err, ErrNoRefreshToken):
		return "no_refresh_token"
	case errors.Is(err, ErrInvalidRefreshResponse):
		return "invalid_response"
	case errors.Is(err, ErrSessionChanged):
		return "session_changed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "rejected"
	}
}
