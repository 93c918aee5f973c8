package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/wolfeidau/wayfarer/internal/models"
)

// FavoritesCmd manages the signed in user's favorite places.
type FavoritesCmd struct {
	List   FavoritesListCmd   `cmd:"" help:"List favorite places" default:"withargs"`
	Add    FavoritesAddCmd    `cmd:"" help:"Add a place to favorites"`
	Remove FavoritesRemoveCmd `cmd:"" help:"Remove a place from favorites"`
}

type FavoritesListCmd struct{}

func (f *FavoritesListCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := globals.client()
	if err != nil {
		return err
	}
	defer c.Close()

	places, cached, err := c.Favorites.List(ctx)
	if err != nil {
		return describe(err)
	}

	out := globals.stdout()
	if len(places) == 0 {
		fmt.Fprintln(out, "No favorites yet.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "To add one:")
		fmt.Fprintln(out, "  tourctl favorites add <place-id>")
		return nil
	}

	printPlaces(out, places)
	if cached {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "(from local cache)")
	}
	return nil
}

type FavoritesAddCmd struct {
	ID string `arg:"" help:"Place ID"`
}

func (f *FavoritesAddCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := globals.client()
	if err != nil {
		return err
	}
	defer c.Close()

	place, err := c.Places.Get(ctx, f.ID)
	if err != nil {
		return describe(err)
	}

	if err := c.Favorites.Add(ctx, *place); err != nil {
		return describe(err)
	}

	fmt.Fprintf(globals.stdout(), "Added %s to favorites.\n", place.Name)
	return nil
}

type FavoritesRemoveCmd struct {
	ID string `arg:"" help:"Place ID"`
}

func (f *FavoritesRemoveCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := globals.client()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Favorites.Remove(ctx, f.ID); err != nil {
		return describe(err)
	}

	fmt.Fprintf(globals.stdout(), "Removed %s from favorites.\n", f.ID)
	return nil
}

func printPlaces(out io.Writer, places []models.Place) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCITY\tCATEGORY\tRATING")

	for _, p := range places {
		rating := "-"
		if p.Rating > 0 {
			rating = fmt.Sprintf("%.1f", p.Rating)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, dash(p.City), dash(p.Category), rating)
	}

	w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
