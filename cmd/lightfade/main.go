package main

import (
	"errors"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightfade/internal/app"
	"github.com/dokzlo13/lightfade/internal/config"
	"github.com/dokzlo13/lightfade/internal/device"
	"github.com/dokzlo13/lightfade/internal/fade"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Support both -c and --config for config path
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")
	dryRun := flag.Bool("dry-run", false, "Simulate the fade without a Hue bridge")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}

	// Setup logging
	setupLogging(cfg.Log.GetLevel(), cfg.Log.UseJSON, cfg.Log.Colors)

	if err := cfg.Validate(*dryRun); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	log.Info().Str("config", configPath).Bool("dry_run", *dryRun).Msg("Starting lightfade")

	application, err := app.New(cfg, *dryRun)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create application")
		return 1
	}
	defer application.Close()

	// Create context that cancels on shutdown signal
	ctx := app.SignalContext()

	summary, err := application.Run(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, app.ErrAlreadyAtTarget):
		return 0
	case errors.Is(err, fade.ErrInterrupted):
		log.Warn().Msg("Fade interrupted, light left at its last setting")
		return 130
	case errors.Is(err, device.ErrConnection):
		log.Error().Err(err).Msg("Failed to connect to light")
		return 1
	default:
		// Session failures are reported in detail by the app.
		if summary.SessionID == "" {
			log.Error().Err(err).Msg("Fade failed")
		}
		return 1
	}
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
