package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/wolfeidau/wayfarer/internal/gateway"
	"github.com/wolfeidau/wayfarer/internal/models"
)

// Places is the client for browsing places.
type Places struct {
	r Requester
}

// NewPlaces creates a places client.
func NewPlaces(r Requester) *Places {
	return &Places{r: r}
}

// List returns the places matching q.
func (p *Places) List(ctx context.Context, q models.PlaceQuery) ([]models.Place, error) {
	res, err := p.r.Request(ctx, http.MethodGet, "/places", nil, gateway.WithQuery(placeQuery(q)))
	if err != nil {
		return nil, err
	}

	var places []models.Place
	if err := res.DecodeList(&places); err != nil {
		return nil, fmt.Errorf("failed to decode places: %w", err)
	}

	return places, nil
}

// Get returns a single place.
func (p *Places) Get(ctx context.Context, id string) (*models.Place, error) {
	res, err := p.r.Request(ctx, http.MethodGet, "/places/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var place models.Place
	if err := res.Decode(&place); err != nil {
		return nil, fmt.Errorf("failed to decode place: %w", err)
	}

	return &place, nil
}

func placeQuery(q models.PlaceQuery) url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("q", q.Search)
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}
