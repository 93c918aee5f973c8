// Package session holds the signed in user and drives the authentication
// status through login, register, refresh and logout.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/wayfarer/internal/models"
	"github.com/wolfeidau/wayfarer/internal/storage"
	"github.com/wolfeidau/wayfarer/internal/tokenstore"
)

// userKey is the storage key of the persisted user record.
const userKey = "user"

var (
	// ErrInvalidAuthResponse is returned when the server omits the user or access token.
	ErrInvalidAuthResponse = errors.New("invalid auth response")

	// ErrSessionExpired is surfaced when a refresh could not keep the session alive.
	ErrSessionExpired = errors.New("session expired")
)

// AuthAPI is the remote side of the session lifecycle.
type AuthAPI interface {
	Login(ctx context.Context, creds models.Credentials) (*models.AuthResponse, error)
	Register(ctx context.Context, input models.RegisterInput) (*models.AuthResponse, error)
	Logout(ctx context.Context) error
}

// Manager is the session state machine. It is safe for concurrent use.
type Manager struct {
	tokens *tokenstore.Store
	kv     storage.KV
	api    AuthAPI

	mu      sync.Mutex
	current models.Session

	listenersMu sync.Mutex
	listeners   map[int]func(models.Session)
	nextID      int
}

// NewManager creates a session manager and restores any persisted session.
func NewManager(tokens *tokenstore.Store, kv storage.KV, api AuthAPI) *Manager {
	m := &Manager{
		tokens:    tokens,
		kv:        kv,
		api:       api,
		current:   models.Session{Status: models.StatusAnonymous},
		listeners: make(map[int]func(models.Session)),
	}
	m.Restore()
	return m
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySession(m.current)
}

// Status returns the current authentication status.
func (m *Manager) Status() models.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Status
}

// Subscribe registers fn to be called with a snapshot after every transition.
// The returned function removes the subscription.
func (m *Manager) Subscribe(fn func(models.Session)) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = fn

	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		delete(m.listeners, id)
	}
}

// Restore rehydrates the session from storage. A partial session (tokens
// without a user, or a user without an access token) is wiped.
func (m *Manager) Restore() {
	access, refresh := m.tokens.Pair()
	user := m.loadUser()

	m.mu.Lock()
	if user != nil && access != "" {
		m.current = models.Session{
			User:         user,
			AccessToken:  access,
			RefreshToken: refresh,
			Status:       models.StatusAuthenticated,
		}
		m.mu.Unlock()

		log.Debug().Str("user_id", user.ID).Msg("restored session")
		return
	}
	m.mu.Unlock()

	if user != nil || access != "" || refresh != "" {
		log.Debug().Msg("discarding partial session")
		m.Clear()
	}
}

// Login authenticates with email and password.
func (m *Manager) Login(ctx context.Context, creds models.Credentials) (*models.User, error) {
	m.transition(models.StatusAuthenticating)

	resp, err := m.api.Login(ctx, creds)
	if err != nil {
		m.fail(err)
		return nil, err
	}

	if err := m.establish(resp); err != nil {
		m.fail(err)
		return nil, err
	}

	log.Info().Str("user_id", resp.User.ID).Msg("logged in")

	return copyUser(resp.User), nil
}

// Register creates an account and signs it in.
func (m *Manager) Register(ctx context.Context, input models.RegisterInput) (*models.User, error) {
	m.transition(models.StatusAuthenticating)

	resp, err := m.api.Register(ctx, input)
	if err != nil {
		m.fail(err)
		return nil, err
	}

	if err := m.establish(resp); err != nil {
		m.fail(err)
		return nil, err
	}

	log.Info().Str("user_id", resp.User.ID).Msg("registered")

	return copyUser(resp.User), nil
}

// Logout revokes the session remotely and always clears it locally.
// A failed remote revoke is logged, not returned.
func (m *Manager) Logout(ctx context.Context) {
	if m.tokens.Get(tokenstore.Access) != "" {
		if err := m.api.Logout(ctx); err != nil {
			log.Warn().Err(err).Msg("remote logout failed, clearing local session")
		}
	}

	m.Clear()

	log.Info().Msg("logged out")
}

// BeginRefresh marks the session as refreshing.
func (m *Manager) BeginRefresh() {
	m.mu.Lock()
	if m.current.IsEmpty() {
		m.mu.Unlock()
		return
	}
	m.current.Status = models.StatusRefreshing
	snap := copySession(m.current)
	m.mu.Unlock()

	m.notify(snap)
}

// ApplyRefreshed stores a refreshed token pair obtained with sent. An empty
// refresh token keeps the current one. It returns false and changes nothing
// when the session was cleared or replaced while the refresh was in flight.
func (m *Manager) ApplyRefreshed(sent, access, refresh string) bool {
	m.mu.Lock()
	if m.current.User == nil || m.current.RefreshToken != sent {
		m.mu.Unlock()
		return false
	}

	m.tokens.SetPair(access, refresh)

	m.current.AccessToken = access
	if refresh != "" {
		m.current.RefreshToken = refresh
	}
	m.current.Error = ""
	m.current.Status = settle(m.current)
	snap := copySession(m.current)
	m.mu.Unlock()

	m.notify(snap)
	return true
}

// Clear removes the user and tokens from memory and storage.
func (m *Manager) Clear() {
	m.clearWith("")
}

// Expire clears the session after an unrecoverable refresh failure,
// keeping the cause as the surfaced error.
func (m *Manager) Expire(cause error) {
	msg := ErrSessionExpired.Error()
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	m.clearWith(msg)
}

func (m *Manager) clearWith(msg string) {
	m.mu.Lock()
	m.tokens.Clear()
	if err := m.kv.Delete(userKey); err != nil {
		log.Warn().Err(err).Msg("failed to delete stored user")
	}
	m.current = models.Session{Status: models.StatusAnonymous, Error: msg}
	snap := copySession(m.current)
	m.mu.Unlock()

	m.notify(snap)
}

func (m *Manager) establish(resp *models.AuthResponse) error {
	if resp == nil || resp.User == nil || resp.AccessToken == "" {
		return ErrInvalidAuthResponse
	}

	m.mu.Lock()
	m.tokens.Set(tokenstore.Access, resp.AccessToken)
	m.tokens.Set(tokenstore.Refresh, resp.RefreshToken)
	m.storeUser(resp.User)
	m.current = models.Session{
		User:         copyUser(resp.User),
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Status:       models.StatusAuthenticated,
	}
	snap := copySession(m.current)
	m.mu.Unlock()

	m.notify(snap)
	return nil
}

func (m *Manager) transition(status models.Status) {
	m.mu.Lock()
	m.current.Status = status
	m.current.Error = ""
	snap := copySession(m.current)
	m.mu.Unlock()

	m.notify(snap)
}

// fail surfaces err through the errored status, then settles on whichever
// state the surviving session supports.
func (m *Manager) fail(err error) {
	m.mu.Lock()
	m.current.Status = models.StatusErrored
	m.current.Error = err.Error()
	errored := copySession(m.current)

	if m.current.IsAuthenticated() {
		m.current.Status = models.StatusAuthenticated
	} else {
		m.current = models.Session{Status: models.StatusAnonymous, Error: err.Error()}
	}
	settled := copySession(m.current)
	m.mu.Unlock()

	m.notify(errored)
	m.notify(settled)
}

func (m *Manager) notify(s models.Session) {
	m.listenersMu.Lock()
	fns := make([]func(models.Session), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.listenersMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func (m *Manager) storeUser(u *models.User) {
	data, err := json.Marshal(u)
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal user")
		return
	}
	if err := m.kv.Set(userKey, string(data)); err != nil {
		log.Warn().Err(err).Msg("failed to store user")
	}
}

func (m *Manager) loadUser() *models.User {
	raw, ok, err := m.kv.Get(userKey)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read stored user")
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	var u models.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		log.Warn().Err(err).Msg("failed to parse stored user")
		return nil
	}
	return &u
}

// settle picks the resting status for s.
func settle(s models.Session) models.Status {
	switch {
	case s.IsAuthenticated():
		return models.StatusAuthenticated
	case s.IsEmpty():
		return models.StatusAnonymous
	default:
		return s.Status
	}
}

func copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func copySession(s models.Session) models.Session {
	s.User = copyUser(s.User)
	return s
}
