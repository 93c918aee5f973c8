package models

import "time"

// Place is a point of interest that users can browse and favorite.
type Place struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	City        string    `json:"city,omitempty"`
	Category    string    `json:"category,omitempty"`
	Rating      float64   `json:"rating,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

// PlaceID returns the identifier used to key places in collections.
func PlaceID(p Place) string {
	return p.ID
}

// PlaceQuery filters the places listing.
type PlaceQuery struct {
	Search   string
	Category string
	Page     int
	Limit    int
}
