package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/wayfarer/internal/gateway"
	"github.com/wolfeidau/wayfarer/internal/models"
	"github.com/wolfeidau/wayfarer/internal/storage"
	"github.com/wolfeidau/wayfarer/internal/tokenstore"
)

type countingRefresher struct {
	calls atomic.Int32
}

func (c *countingRefresher) RequestRefresh(ctx context.Context, staleToken string) (string, error) {
	c.calls.Add(1)
	return "refreshed", nil
}

func newTestRequester(t *testing.T, mux *http.ServeMux) (*gateway.Gateway, *tokenstore.Store, *countingRefresher) {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	tokens := tokenstore.New(storage.NewMemoryKV())
	gw, err := gateway.New(gateway.Config{BaseURL: srv.URL, HTTPClient: srv.Client()}, tokens)
	require.NoError(t, err)

	refresher := &countingRefresher{}
	gw.SetRefresher(refresher)

	return gw, tokens, refresher
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestAuth_Login(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds models.Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "ana@example.com", creds.Email)
		assert.Empty(t, r.Header.Get("Authorization"))

		writeJSON(w, http.StatusOK, `{"success":true,"data":{"user":{"id":"u-1","name":"Ana","email":"ana@example.com","role":"user","isVerified":true},"accessToken":"a1","refreshToken":"r1"}}`)
	})

	gw, _, _ := newTestRequester(t, mux)

	resp, err := NewAuth(gw).Login(context.Background(), models.Credentials{Email: "ana@example.com", Password: "secret"})
	require.NoError(t, err)
	require.NotNil(t, resp.User)
	assert.Equal(t, "u-1", resp.User.ID)
	assert.True(t, resp.User.Verified)
	assert.Equal(t, "a1", resp.AccessToken)
	assert.Equal(t, "r1", resp.RefreshToken)
}

func TestAuth_RegisterNestedTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `{"user":{"id":"u-2","name":"Bo"},"tokens":{"accessToken":"a2","refreshToken":"r2"}}`)
	})

	gw, _, _ := newTestRequester(t, mux)

	resp, err := NewAuth(gw).Register(context.Background(), models.RegisterInput{Name: "Bo", Email: "bo@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "u-2", resp.User.ID)
	assert.Equal(t, "a2", resp.AccessToken)
	assert.Equal(t, "r2", resp.RefreshToken)
}

func TestAuth_LoginRejectedDoesNotRefresh(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"invalid credentials"}`)
	})

	gw, _, refresher := newTestRequester(t, mux)

	_, err := NewAuth(gw).Login(context.Background(), models.Credentials{Email: "x", Password: "y"})
	require.Error(t, err)
	assert.True(t, gateway.IsUnauthenticated(err))
	assert.Equal(t, int32(0), refresher.calls.Load())
}

func TestAuth_Refresh(t *testing.T) {
	var hits atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if body["refreshToken"] != "r1" {
			writeJSON(w, http.StatusUnauthorized, `{"message":"invalid refresh token"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"data":{"accessToken":"a2"}}`)
	})

	gw, _, refresher := newTestRequester(t, mux)
	auth := NewAuth(gw)

	pair, err := auth.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "a2", pair.AccessToken)
	assert.Empty(t, pair.RefreshToken)

	_, err = auth.Refresh(context.Background(), "stale")
	require.Error(t, err)
	assert.True(t, gateway.IsUnauthenticated(err))

	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(0), refresher.calls.Load())
}

func TestAuth_Logout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer a1", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})

	gw, tokens, _ := newTestRequester(t, mux)
	tokens.Set(tokenstore.Access, "a1")

	require.NoError(t, NewAuth(gw).Logout(context.Background()))
}

func TestFavorites(t *testing.T) {
	var added, removed string

	mux := http.NewServeMux()
	mux.HandleFunc("GET /favorites", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"items":[{"id":"p-1","name":"Colosseum"},{"id":"p-2","name":"Pantheon"}]}}`)
	})
	mux.HandleFunc("POST /favorites/{id}", func(w http.ResponseWriter, r *http.Request) {
		added = r.PathValue("id")
		writeJSON(w, http.StatusCreated, `{"message":"added"}`)
	})
	mux.HandleFunc("DELETE /favorites/{id}", func(w http.ResponseWriter, r *http.Request) {
		removed = r.PathValue("id")
		w.WriteHeader(http.StatusNoContent)
	})

	gw, _, _ := newTestRequester(t, mux)
	favs := NewFavorites(gw)
	ctx := context.Background()

	places, err := favs.List(ctx)
	require.NoError(t, err)
	require.Len(t, places, 2)
	assert.Equal(t, "Colosseum", places[0].Name)

	require.NoError(t, favs.Add(ctx, "p-3"))
	assert.Equal(t, "p-3", added)

	require.NoError(t, favs.Remove(ctx, "p-1"))
	assert.Equal(t, "p-1", removed)
}

func TestFavorites_AddConflict(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /favorites/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, `{"message":"already a favorite"}`)
	})

	gw, _, _ := newTestRequester(t, mux)

	err := NewFavorites(gw).Add(context.Background(), "p-1")
	require.ErrorIs(t, err, gateway.ErrConflict)
}

func TestPlaces(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /places", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "rome", q.Get("q"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.False(t, q.Has("category"))

		writeJSON(w, http.StatusOK, `[{"id":"p-1","name":"Colosseum","city":"Rome","rating":4.8}]`)
	})
	mux.HandleFunc("GET /places/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "p-1" {
			writeJSON(w, http.StatusNotFound, `{"message":"place not found"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"data":{"id":"p-1","name":"Colosseum"}}`)
	})

	gw, _, _ := newTestRequester(t, mux)
	places := NewPlaces(gw)
	ctx := context.Background()

	list, err := places.List(ctx, models.PlaceQuery{Search: "rome", Page: 2, Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.InDelta(t, 4.8, list[0].Rating, 0.001)

	place, err := places.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Colosseum", place.Name)

	_, err = places.Get(ctx, "missing")
	require.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestChat(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /chat/{room}/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "rome tips", r.PathValue("room"))
		writeJSON(w, http.StatusOK, `{"data":{"messages":[{"id":"m-1","text":"hi","senderId":"u-1"}]}}`)
	})
	mux.HandleFunc("POST /chat/{room}/messages", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusCreated, `{"data":{"id":"m-2","text":"`+body["text"]+`","senderId":"u-1"}}`)
	})

	gw, _, _ := newTestRequester(t, mux)
	chat := NewChat(gw)
	ctx := context.Background()

	msgs, err := chat.Messages(ctx, "rome tips")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Text)

	msg, err := chat.Send(ctx, "rome tips", "  ciao  ")
	require.NoError(t, err)
	assert.Equal(t, "m-2", msg.ID)
	assert.Equal(t, "ciao", msg.Text)
	assert.Equal(t, "rome tips", msg.Room)

	_, err = chat.Send(ctx, "rome tips", "   ")
	require.ErrorIs(t, err, ErrEmptyMessage)
}
