package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wolfeidau/wayfarer/internal/gateway"
	"github.com/wolfeidau/wayfarer/internal/models"
)

// Auth is the client for the /auth endpoints.
type Auth struct {
	r Requester
}

// NewAuth creates an auth client.
func NewAuth(r Requester) *Auth {
	return &Auth{r: r}
}

// authPayload accepts tokens either at the top level or nested under "tokens".
type authPayload struct {
	User         *models.User      `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
	Tokens       *models.TokenPair `json:"tokens"`
}

func (p *authPayload) response() *models.AuthResponse {
	resp := &models.AuthResponse{
		User:         p.User,
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
	}
	if p.Tokens != nil {
		if resp.AccessToken == "" {
			resp.AccessToken = p.Tokens.AccessToken
		}
		if resp.RefreshToken == "" {
			resp.RefreshToken = p.Tokens.RefreshToken
		}
	}
	return resp
}

// Login exchanges credentials for a user and token pair.
func (a *Auth) Login(ctx context.Context, creds models.Credentials) (*models.AuthResponse, error) {
	return a.authenticate(ctx, "/auth/login", creds)
}

// Register creates an account and returns its user and token pair.
func (a *Auth) Register(ctx context.Context, input models.RegisterInput) (*models.AuthResponse, error) {
	return a.authenticate(ctx, "/auth/register", input)
}

func (a *Auth) authenticate(ctx context.Context, path string, body any) (*models.AuthResponse, error) {
	res, err := a.r.Request(ctx, http.MethodPost, path, body, gateway.SkipAuthRefresh())
	if err != nil {
		return nil, err
	}

	var payload authPayload
	if err := res.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode auth response: %w", err)
	}

	return payload.response(), nil
}

// Refresh exchanges a refresh token for a new token pair. It never triggers
// another refresh: a 401 here means the refresh token itself was rejected.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	body := map[string]string{"refreshToken": refreshToken}

	res, err := a.r.Request(ctx, http.MethodPost, "/auth/refresh-token", body, gateway.SkipAuthRefresh())
	if err != nil {
		return nil, err
	}

	var payload authPayload
	if err := res.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}

	resp := payload.response()

	return &models.TokenPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}, nil
}

// Logout revokes the current session on the server.
func (a *Auth) Logout(ctx context.Context) error {
	_, err := a.r.Request(ctx, http.MethodPost, "/auth/logout", nil, gateway.SkipAuthRefresh())
	return err
}
