package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// userHeader carries the authenticated user ID from authed to the handlers.
const userHeader = "X-Fake-User"

// fakeTourAPI is an in-memory tourism API issuing numbered opaque tokens.
type fakeTourAPI struct {
	*httptest.Server

	mu           sync.Mutex
	issued       int
	validAccess  map[string]string // token to user ID
	validRefresh map[string]string
	favorites    map[string][]map[string]string

	// rejectAll makes every bearer check fail, including for fresh tokens.
	rejectAll bool

	// holdRefresh, when set, delays the refresh response until it returns true.
	holdRefresh func() bool

	refreshCalls   atomic.Int32
	logoutCalls    atomic.Int32
	unauthorized   atomic.Int32
	favoritesCalls atomic.Int32
}

func newFakeTourAPI(t *testing.T) *fakeTourAPI {
	t.Helper()

	f := &fakeTourAPI{
		validAccess:  map[string]string{},
		validRefresh: map[string]string{},
		favorites: map[string][]map[string]string{
			"u-1": {{"id": "p-1", "name": "Colosseum"}},
			"u-2": {{"id": "p-9", "name": "Uffizi"}},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", f.login)
	mux.HandleFunc("POST /api/auth/refresh-token", f.refresh)
	mux.HandleFunc("POST /api/auth/logout", f.authed(f.logout))
	mux.HandleFunc("GET /api/favorites", f.authed(f.listFavorites))
	mux.HandleFunc("POST /api/favorites/{id}", f.authed(f.addFavorite))
	mux.HandleFunc("GET /api/places", f.authed(f.listPlaces))

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)

	return f
}

func (f *fakeTourAPI) baseURL() string {
	return f.URL + "/api"
}

func (f *fakeTourAPI) issue(userID string) (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	access := fmt.Sprintf("access-%d", f.issued)
	refresh := fmt.Sprintf("refresh-%d", f.issued)
	f.validAccess[access] = userID
	f.validRefresh[refresh] = userID
	return access, refresh
}

// expireAccess invalidates every access token issued so far.
func (f *fakeTourAPI) expireAccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validAccess = map[string]string{}
}

// revokeRefresh invalidates every refresh token issued so far.
func (f *fakeTourAPI) revokeRefresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validRefresh = map[string]string{}
}

func (f *fakeTourAPI) setRejectAll(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectAll = v
}

func (f *fakeTourAPI) setHoldRefresh(fn func() bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdRefresh = fn
}

func (f *fakeTourAPI) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		f.mu.Lock()
		userID, ok := f.validAccess[token]
		ok = ok && !f.rejectAll
		f.mu.Unlock()

		if !ok {
			f.unauthorized.Add(1)
			reply(w, http.StatusUnauthorized, map[string]any{"message": "jwt expired"})
			return
		}
		r.Header.Set(userHeader, userID)
		next(w, r)
	}
}

func (f *fakeTourAPI) login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		reply(w, http.StatusBadRequest, map[string]any{"message": "bad body"})
		return
	}
	if creds.Password != "correct-horse" {
		reply(w, http.StatusUnauthorized, map[string]any{"message": "invalid credentials"})
		return
	}

	userID, name := "u-1", "Ana"
	if creds.Email == "bea@example.com" {
		userID, name = "u-2", "Bea"
	}

	access, refresh := f.issue(userID)
	reply(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"user":         map[string]any{"id": userID, "name": name, "email": creds.Email, "role": "user", "isVerified": true},
			"accessToken":  access,
			"refreshToken": refresh,
		},
	})
}

func (f *fakeTourAPI) refresh(w http.ResponseWriter, r *http.Request) {
	f.refreshCalls.Add(1)

	f.mu.Lock()
	hold := f.holdRefresh
	f.mu.Unlock()

	if hold != nil {
		deadline := time.Now().Add(2 * time.Second)
		for !hold() && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	userID, ok := f.validRefresh[body.RefreshToken]
	delete(f.validRefresh, body.RefreshToken)
	f.mu.Unlock()

	if !ok {
		reply(w, http.StatusUnauthorized, map[string]any{"message": "invalid refresh token"})
		return
	}

	access, refresh := f.issue(userID)
	reply(w, http.StatusOK, map[string]any{"data": map[string]any{"accessToken": access, "refreshToken": refresh}})
}

func (f *fakeTourAPI) logout(w http.ResponseWriter, r *http.Request) {
	f.logoutCalls.Add(1)
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeTourAPI) listFavorites(w http.ResponseWriter, r *http.Request) {
	f.favoritesCalls.Add(1)

	f.mu.Lock()
	items := append([]map[string]string(nil), f.favorites[r.Header.Get(userHeader)]...)
	f.mu.Unlock()

	reply(w, http.StatusOK, map[string]any{"data": map[string]any{"items": items}})
}

func (f *fakeTourAPI) addFavorite(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f.mu.Lock()
	userID := r.Header.Get(userHeader)
	f.favorites[userID] = append(f.favorites[userID], map[string]string{"id": id})
	f.mu.Unlock()
	reply(w, http.StatusCreated, map[string]any{"message": "added"})
}

func (f *fakeTourAPI) listPlaces(w http.ResponseWriter, r *http.Request) {
	reply(w, http.StatusOK, []map[string]any{{"id": "p-1", "name": "Colosseum", "city": "Rome"}})
}

func reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
