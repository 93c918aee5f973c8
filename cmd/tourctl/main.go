package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/wayfarer/cmd/tourctl/internal/commands"
	"github.com/wolfeidau/wayfarer/internal/logger"
	"github.com/wolfeidau/wayfarer/internal/telemetry"
)

var (
	version = "dev"
	cli     struct {
		Login     commands.LoginCmd     `cmd:"" help:"Sign in"`
		Register  commands.RegisterCmd  `cmd:"" help:"Create an account and sign in"`
		Logout    commands.LogoutCmd    `cmd:"" help:"Sign out"`
		Status    commands.StatusCmd    `cmd:"" help:"Show the current session"`
		Favorites commands.FavoritesCmd `cmd:"" help:"Manage favorite places"`
		Places    commands.PlacesCmd    `cmd:"" help:"Browse places"`
		Chat      commands.ChatCmd      `cmd:"" help:"Read and post chat messages"`

		Config     string `help:"Config file path." type:"path" env:"WAYFARER_CONFIG"`
		Server     string `help:"API base URL." env:"WAYFARER_SERVER_URL"`
		StorageDir string `help:"Directory for the session and cached data." type:"path" env:"WAYFARER_STORAGE_DIR"`
		Telemetry  string `help:"OTLP endpoint for traces and metrics." env:"WAYFARER_TELEMETRY_ENDPOINT"`
		Debug      bool   `help:"Enable debug mode."`
		Version    kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("tourctl"),
		kong.Description("Command line client for the tourism API."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	log.Logger = logger.Setup(os.Stderr, cli.Debug)

	shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Options{
		ServiceName: "tourctl",
		Version:     version,
		Endpoint:    cli.Telemetry,
	})
	cmd.FatalIfErrorf(err)

	err = cmd.Run(&commands.Globals{
		Debug:      cli.Debug,
		Version:    version,
		ConfigFile: cli.Config,
		Server:     cli.Server,
		StorageDir: cli.StorageDir,
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := shutdown(shutdownCtx); serr != nil {
		log.Warn().Err(serr).Msg("failed to flush telemetry")
	}

	cmd.FatalIfErrorf(err)
}
