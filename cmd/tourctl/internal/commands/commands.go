package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/wolfeidau/wayfarer/internal/config"
	"github.com/wolfeidau/wayfarer/internal/gateway"
	"github.com/wolfeidau/wayfarer/pkg/sdk"
)

type Globals struct {
	Debug      bool
	Version    string
	ConfigFile string
	Server     string
	StorageDir string

	out        io.Writer
	clientOpts []sdk.ClientOption
}

func (g *Globals) stdout() io.Writer {
	if g.out != nil {
		return g.out
	}
	return os.Stdout
}

// client loads the configuration, applies flag overrides and builds an SDK client.
func (g *Globals) client() (*sdk.Client, error) {
	cfg, err := config.Load(config.LoadOptions{File: g.ConfigFile})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if g.Server != "" {
		cfg.ServerURL = g.Server
	}
	if g.StorageDir != "" {
		cfg.StorageDir = g.StorageDir
	}
	if g.Debug {
		cfg.Debug = true
	}

	opts := append([]sdk.ClientOption{sdk.WithUserAgent("tourctl/" + g.Version)}, g.clientOpts...)

	c, err := sdk.NewClient(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return c, nil
}

// describe turns gateway errors into messages for the terminal.
func describe(err error) error {
	var gwErr *gateway.Error
	if !errors.As(err, &gwErr) {
		return err
	}

	switch gwErr.Kind {
	case gateway.KindUnauthenticated:
		return fmt.Errorf("%s\n\nRun 'tourctl login' to sign in", gwErr.Message)
	case gateway.KindNetwork:
		return fmt.Errorf("could not reach the server: %w", err)
	case gateway.KindValidation:
		msg := gwErr.Message
		for field, problem := range gwErr.Fields {
			msg += fmt.Sprintf("\n  %s: %s", field, problem)
		}
		return errors.New(msg)
	default:
		return err
	}
}
