package sdk

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/wayfarer/internal/config"
	"github.com/wolfeidau/wayfarer/internal/gateway"
	"github.com/wolfeidau/wayfarer/internal/models"
	"github.com/wolfeidau/wayfarer/internal/storage"
	"github.com/wolfeidau/wayfarer/internal/tokenstore"
)

const password = "correct-horse"

func testConfig(t *testing.T, f *fakeTourAPI) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ServerURL = f.baseURL()
	cfg.StorageDir = t.TempDir()
	return cfg
}

func newTestClient(t *testing.T, f *fakeTourAPI, kv storage.KV) *Client {
	t.Helper()

	opts := []ClientOption{WithHTTPClient(f.Client())}
	if kv != nil {
		opts = append(opts, WithStorage(kv))
	}

	c, err := NewClient(testConfig(t, f), opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return c
}

func loggedIn(t *testing.T, f *fakeTourAPI, kv storage.KV) *Client {
	t.Helper()
	c := newTestClient(t, f, kv)
	_, err := c.Login(context.Background(), "ana@example.com", password)
	require.NoError(t, err)
	return c
}

func TestNewClient_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ServerURL = "not a url"

	_, err := NewClient(cfg, WithStorage(storage.NewMemoryKV()))
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestClient_LoginAndFavorites(t *testing.T) {
	f := newFakeTourAPI(t)
	kv := storage.NewMemoryKV()
	c := loggedIn(t, f, kv)
	ctx := context.Background()

	s := c.Current()
	assert.Equal(t, models.StatusAuthenticated, s.Status)
	require.NotNil(t, s.User)
	assert.Equal(t, "u-1", s.User.ID)
	assert.Equal(t, "access-1", c.Tokens.Get(tokenstore.Access))
	assert.Equal(t, "refresh-1", c.Tokens.Get(tokenstore.Refresh))

	places, cached, err := c.Favorites.List(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, places, 1)
	assert.Equal(t, "Colosseum", places[0].Name)

	require.NoError(t, c.Favorites.Add(ctx, models.Place{ID: "p-2", Name: "Pantheon"}))
	assert.True(t, c.Favorites.Contains("p-2"))

	_, cached, err = c.Favorites.List(ctx)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, int32(1), f.favoritesCalls.Load())
}

func TestClient_LoginFailure(t *testing.T) {
	f := newFakeTourAPI(t)
	c := newTestClient(t, f, storage.NewMemoryKV())

	_, err := c.Login(context.Background(), "ana@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, gateway.IsUnauthenticated(err))

	s := c.Current()
	assert.Equal(t, models.StatusAnonymous, s.Status)
	assert.NotEmpty(t, s.Error)
	assert.Equal(t, int32(0), f.refreshCalls.Load())
}

func TestClient_ExpiredAccessTokenRefreshesOnce(t *testing.T) {
	f := newFakeTourAPI(t)
	c := loggedIn(t, f, storage.NewMemoryKV())

	f.expireAccess()

	places, err := c.Places.List(context.Background(), models.PlaceQuery{Search: "rome"})
	require.NoError(t, err)
	assert.Len(t, places, 1)

	assert.Equal(t, int32(1), f.refreshCalls.Load())
	assert.Equal(t, int32(1), f.unauthorized.Load())
	assert.Equal(t, "access-2", c.Tokens.Get(tokenstore.Access))
	assert.Equal(t, "refresh-2", c.Tokens.Get(tokenstore.Refresh))

	s := c.Current()
	assert.Equal(t, models.StatusAuthenticated, s.Status)
	assert.Equal(t, "access-2", s.AccessToken)
}

func TestClient_ConcurrentFailuresShareOneRefresh(t *testing.T) {
	const callers = 8

	f := newFakeTourAPI(t)
	c := loggedIn(t, f, storage.NewMemoryKV())

	f.expireAccess()
	f.setHoldRefresh(func() bool { return f.unauthorized.Load() >= callers })

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Places.List(context.Background(), models.PlaceQuery{})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), f.refreshCalls.Load())
	assert.Equal(t, int32(callers), f.unauthorized.Load())
	assert.Equal(t, "access-2", c.Tokens.Get(tokenstore.Access))
	assert.False(t, c.RefreshInFlight())
}

func TestClient_RefreshFailureEndsSession(t *testing.T) {
	const callers = 5

	f := newFakeTourAPI(t)
	kv := storage.NewMemoryKV()
	c := loggedIn(t, f, kv)
	ctx := context.Background()

	_, _, err := c.Favorites.List(ctx)
	require.NoError(t, err)
	require.True(t, c.Favorites.Contains("p-1"))

	f.expireAccess()
	f.revokeRefresh()
	f.setHoldRefresh(func() bool { return f.unauthorized.Load() >= callers })

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Places.List(ctx, models.PlaceQuery{})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
		assert.True(t, gateway.IsUnauthenticated(err))
	}

	assert.Equal(t, int32(1), f.refreshCalls.Load())

	s := c.Current()
	assert.Equal(t, models.StatusAnonymous, s.Status)
	assert.Nil(t, s.User)
	assert.Empty(t, c.Tokens.Get(tokenstore.Access))
	assert.Empty(t, c.Tokens.Get(tokenstore.Refresh))

	assert.False(t, c.Favorites.Contains("p-1"))
	_, ok, err := kv.Get("cache:favorites")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_ReplayIsBounded(t *testing.T) {
	f := newFakeTourAPI(t)
	c := loggedIn(t, f, storage.NewMemoryKV())

	f.setRejectAll(true)

	_, err := c.Places.List(context.Background(), models.PlaceQuery{})
	require.Error(t, err)
	assert.True(t, gateway.IsUnauthenticated(err))

	assert.Equal(t, int32(1), f.refreshCalls.Load())
	assert.Equal(t, int32(2), f.unauthorized.Load())
}

func TestClient_LogoutClearsEverything(t *testing.T) {
	f := newFakeTourAPI(t)
	kv := storage.NewMemoryKV()
	c := loggedIn(t, f, kv)
	ctx := context.Background()

	_, _, err := c.Favorites.List(ctx)
	require.NoError(t, err)

	c.Logout(ctx)

	assert.Equal(t, int32(1), f.logoutCalls.Load())
	assert.Equal(t, models.StatusAnonymous, c.Current().Status)
	assert.Empty(t, c.Tokens.Get(tokenstore.Access))
	assert.False(t, c.Favorites.Contains("p-1"))
	assert.Equal(t, 0, kv.Len())
}

func TestClient_RestoresPersistedSession(t *testing.T) {
	f := newFakeTourAPI(t)
	cfg := testConfig(t, f)
	ctx := context.Background()

	first, err := NewClient(cfg, WithHTTPClient(f.Client()))
	require.NoError(t, err)
	_, err = first.Login(ctx, "ana@example.com", password)
	require.NoError(t, err)
	_, _, err = first.Favorites.List(ctx)
	require.NoError(t, err)
	first.Close()

	second, err := NewClient(cfg, WithHTTPClient(f.Client()))
	require.NoError(t, err)
	t.Cleanup(second.Close)

	s := second.Current()
	assert.Equal(t, models.StatusAuthenticated, s.Status)
	require.NotNil(t, s.User)
	assert.Equal(t, "ana@example.com", s.User.Email)

	_, cached, err := second.Favorites.List(ctx)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, int32(1), f.favoritesCalls.Load())
}

func TestClient_LoginAsAnotherUserDropsFavorites(t *testing.T) {
	f := newFakeTourAPI(t)
	kv := storage.NewMemoryKV()
	c := loggedIn(t, f, kv)
	ctx := context.Background()

	places, _, err := c.Favorites.List(ctx)
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, "p-1", places[0].ID)

	user, err := c.Login(ctx, "bea@example.com", password)
	require.NoError(t, err)
	assert.Equal(t, "u-2", user.ID)
	assert.False(t, c.Favorites.Contains("p-1"))

	places, cached, err := c.Favorites.List(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, places, 1)
	assert.Equal(t, "p-9", places[0].ID)
	assert.Equal(t, int32(2), f.favoritesCalls.Load())
}

func TestClient_LoginAsSameUserKeepsFavorites(t *testing.T) {
	f := newFakeTourAPI(t)
	c := loggedIn(t, f, storage.NewMemoryKV())
	ctx := context.Background()

	_, _, err := c.Favorites.List(ctx)
	require.NoError(t, err)

	_, err = c.Login(ctx, "ana@example.com", password)
	require.NoError(t, err)

	_, cached, err := c.Favorites.List(ctx)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, int32(1), f.favoritesCalls.Load())
}
