package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/wolfeidau/wayfarer/internal/models"
)

// Favorites is the client for the signed in user's favorite places.
type Favorites struct {
	r Requester
}

// NewFavorites creates a favorites client.
func NewFavorites(r Requester) *Favorites {
	return &Favorites{r: r}
}

// List returns the user's favorite places.
func (f *Favorites) List(ctx context.Context) ([]models.Place, error) {
	res, err := f.r.Request(ctx, http.MethodGet, "/favorites", nil)
	if err != nil {
		return nil, err
	}

	var places []models.Place
	if err := res.DecodeList(&places); err != nil {
		return nil, fmt.Errorf("failed to decode favorites: %w", err)
	}

	return places, nil
}

// Add marks a place as a favorite.
func (f *Favorites) Add(ctx context.Context, placeID string) error {
	_, err := f.r.Request(ctx, http.MethodPost, "/favorites/"+url.PathEscape(placeID), nil)
	return err
}

// Remove unmarks a favorite place.
func (f *Favorites) Remove(ctx context.Context, placeID string) error {
	_, err := f.r.Request(ctx, http.MethodDelete, "/favorites/"+url.PathEscape(placeID), nil)
	return err
}
