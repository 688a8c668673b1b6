package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightfade/internal/config"
	"github.com/dokzlo13/lightfade/internal/device"
	"github.com/dokzlo13/lightfade/internal/fade"
	"github.com/dokzlo13/lightfade/internal/luacurve"
)

// ErrAlreadyAtTarget is returned when start_from_current finds the light at the end brightness.
var ErrAlreadyAtTarget = errors.New("already at target brightness")

// LightConnector opens the light a session drives.
type LightConnector func(ctx context.Context) (device.Light, error)

// App runs a single fade session against one light.
type App struct {
	cfg      *config.Config
	services *Services
	connect  LightConnector
}

// New creates a new App with the Hue light connector, or the dry-run light when dryRun is set.
func New(cfg *config.Config, dryRun bool) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		services: services,
	}
	if dryRun {
		a.connect = func(ctx context.Context) (device.Light, error) {
			return device.NewDryRun("dry-run", false, 0), nil
		}
	} else {
		a.connect = services.ConnectHue
	}

	return a, nil
}

// NewWithConnector creates an App that drives the light returned by connect.
func NewWithConnector(cfg *config.Config, connect LightConnector) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, services: services, connect: connect}, nil
}

// Run connects to the light and runs the fade to completion.
// Panics inside the session are recovered and reported with a stack trace;
// the light is then left in its last commanded state.
func (a *App) Run(ctx context.Context) (summary fade.Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Unexpected error during fade session")
			err = fmt.Errorf("unexpected panic: %v", r)
		}
	}()

	light, err := a.connect(ctx)
	if err != nil {
		return summary, err
	}

	info := light.Info()
	log.Info().
		Str("alias", info.Alias).
		Str("model", info.Model).
		Bool("on", info.On).
		Int("bri", info.Brightness).
		Msg("Connected")

	fadeCfg := a.cfg.FadeConfig()

	if a.cfg.Session.StartFromCurrent {
		fadeCfg.StartBrightness = 0
		if info.On {
			// A lit light is never at 0%, even if its driver rounds down.
			fadeCfg.StartBrightness = max(fade.MinBrightness, info.Brightness)
		}
		if fadeCfg.StartBrightness == fadeCfg.EndBrightness {
			log.Info().Int("bri", fadeCfg.EndBrightness).Msg("Already at target brightness")
			return summary, ErrAlreadyAtTarget
		}
	}

	if a.cfg.Session.CurveScript != "" {
		curve, err := luacurve.Load(a.cfg.Session.CurveScript)
		if err != nil {
			return summary, err
		}
		defer curve.Close()
		fadeCfg.Curve = curve.Func()
	}

	session, err := fade.New(fadeCfg, light, fade.SystemClock{}, a.services.Bus)
	if err != nil {
		return summary, err
	}

	summary, err = session.Run(ctx)
	if err != nil && !errors.Is(err, fade.ErrInterrupted) {
		logSessionFailure(summary, err)
	}
	return summary, err
}

// logSessionFailure reports where a session stopped and the last step it sent.
func logSessionFailure(summary fade.Summary, err error) {
	event := log.Error().
		Err(err).
		Str("session", summary.SessionID).
		Str("phase", summary.Phase.String()).
		Str("failed_in", summary.FailedIn.String()).
		Int("steps", summary.Steps).
		Int("failed_steps", summary.Failed).
		Dur("elapsed", summary.Elapsed)

	if r := summary.LastResult; r != nil {
		event = event.
			Int("last_step", r.Step.Index).
			Int("last_bri", r.Step.Brightness)
		if r.Err != nil {
			event = event.AnErr("last_step_error", r.Err)
		}
	}

	event.Msg("Fade session failed")
}

// Close flushes pending events and releases all resources.
func (a *App) Close() {
	if a.services != nil {
		a.services.Close()
	}
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
