package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/wayfarer/internal/models"
)

// PlacesCmd browses places.
type PlacesCmd struct {
	List PlacesListCmd `cmd:"" help:"List places" default:"withargs"`
	Show PlacesShowCmd `cmd:"" help:"Show a place"`
}

type PlacesListCmd struct {
	Search   string `help:"Search text" short:"q"`
	Category string `help:"Category to filter by"`
	Page     int    `help:"Page number" default:"1"`
	Limit    int    `help:"Number of places per page" default:"20"`
}

func (p *PlacesListCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := globals.client()
	if err != nil {
		return err
	}
	defer c.Close()

	places, err := c.Places.List(ctx, models.PlaceQuery{
		Search:   p.Search,
		Category: p.Category,
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		return describe(err)
	}

	out := globals.stdout()
	if len(places) == 0 {
		fmt.Fprintln(out, "No places found.")
		return nil
	}

	printPlaces(out, places)
	return nil
}

type PlacesShowCmd struct {
	ID string `arg:"" help:"Place ID"`
}

func (p *PlacesShowCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := globals.client()
	if err != nil {
		return err
	}
	defer c.Close()

	place, err := c.Places.Get(ctx, p.ID)
	if err != nil {
		return describe(err)
	}

	out := globals.stdout()
	fmt.Fprintf(out, "ID:        %s\n", place.ID)
	fmt.Fprintf(out, "Name:      %s\n", place.Name)
	fmt.Fprintf(out, "City:      %s\n", dash(place.City))
	fmt.Fprintf(out, "Category:  %s\n", dash(place.Category))
	if place.Rating > 0 {
		fmt.Fprintf(out, "Rating:    %.1f\n", place.Rating)
	}
	if c.Favorites.Contains(place.ID) {
		fmt.Fprintln(out, "Favorite:  yes")
	}
	if place.Description != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, place.Description)
	}

	return nil
}
