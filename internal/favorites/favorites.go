// Package favorites manages the signed in user's favorite places on top of
// a cached collection.
package favorites

import (
	"context"
	"errors"

	"github.com/wolfeidau/wayfarer/internal/collection"
	"github.com/wolfeidau/wayfarer/internal/models"
	"github.com/wolfeidau/wayfarer/internal/storage"
)

// CollectionName is the name the favorites are cached under.
const CollectionName = "favorites"

// ErrEmptyPlaceID is returned when a place has no identifier.
var ErrEmptyPlaceID = errors.New("place id is empty")

// API is the remote favorites endpoint.
type API interface {
	List(ctx context.Context) ([]models.Place, error)
	Add(ctx context.Context, placeID string) error
	Remove(ctx context.Context, placeID string) error
}

// Service reads and changes favorites. Changes are shown immediately and
// rolled back if the server rejects them.
type Service struct {
	cache *collection.Cache[models.Place]
}

// NewService creates a favorites service.
func NewService(api API, kv storage.KV, opts ...collection.Option) *Service {
	mutate := func(ctx context.Context, op collection.Op, p models.Place) error {
		if op == collection.Remove {
			return api.Remove(ctx, p.ID)
		}
		return api.Add(ctx, p.ID)
	}

	return &Service{
		cache: collection.New(CollectionName, kv, models.PlaceID, api.List, mutate, opts...),
	}
}

// List returns the favorites and whether they came from the local cache.
func (s *Service) List(ctx context.Context) ([]models.Place, bool, error) {
	res, err := s.cache.Read(ctx)
	if err != nil {
		return nil, false, err
	}
	return res.Items(), res.ServedFromCache, nil
}

// Add marks place as a favorite.
func (s *Service) Add(ctx context.Context, place models.Place) error {
	if place.ID == "" {
		return ErrEmptyPlaceID
	}
	return s.cache.Mutate(ctx, collection.Insert, place)
}

// Remove unmarks the place with the given id.
func (s *Service) Remove(ctx context.Context, placeID string) error {
	if placeID == "" {
		return ErrEmptyPlaceID
	}
	return s.cache.Mutate(ctx, collection.Remove, models.Place{ID: placeID})
}

// Contains reports whether placeID is in the cached favorites. It never fetches.
func (s *Service) Contains(placeID string) bool {
	snap := s.cache.Snapshot()
	if snap == nil {
		return false
	}
	for _, p := range snap.Items {
		if p.ID == placeID {
			return true
		}
	}
	return false
}

// Invalidate drops the cached favorites.
func (s *Service) Invalidate() {
	s.cache.Invalidate()
}

// Wait blocks until background refreshes of the favorites have finished.
func (s *Service) Wait() {
	s.cache.Wait()
}
