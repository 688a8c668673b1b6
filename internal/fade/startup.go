package fade

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightfade/internal/device"
)

// DefaultSettleDelay is how long to wait after powering off before the
// device state is trusted again.
const DefaultSettleDelay = 1 * time.Second

// StartupState is the progress of the startup state machine.
type StartupState int

const (
	StartupUninitialized StartupState = iota
	StartupPresetting
	StartupStarted
)

// String returns a human-readable name for the state.
func (s StartupState) String() string {
	switch s {
	case StartupUninitialized:
		return "uninitialized"
	case StartupPresetting:
		return "presetting"
	case StartupStarted:
		return "started"
	default:
		return "unknown"
	}
}

// StartupAction is how the device is brought to the session's start state.
type StartupAction int

const (
	// ActionReassert writes the start state to a light that is already on.
	ActionReassert StartupAction = iota
	// ActionPresetAndPowerOn presets the state on a light that is off, powers
	// it on and writes the state again.
	ActionPresetAndPowerOn
	// ActionPowerCycle turns a lit light off first so a fade from zero
	// starts from darkness, then continues like ActionPresetAndPowerOn.
	ActionPowerCycle
)

// String returns a human-readable name for the action.
func (a StartupAction) String() string {
	switch a {
	case ActionReassert:
		return "reassert"
	case ActionPresetAndPowerOn:
		return "preset_and_power_on"
	case ActionPowerCycle:
		return "power_cycle"
	default:
		return "unknown"
	}
}

// DetermineStartup decides how to reach the start state without a visible
// flash of the light's previous color or brightness.
func DetermineStartup(startBrightness int, isOn bool) StartupAction {
	switch {
	case startBrightness == 0 && isOn:
		return ActionPowerCycle
	case !isOn:
		return ActionPresetAndPowerOn
	default:
		return ActionReassert
	}
}

// Startup runs the startup state machine once against a light.
type Startup struct {
	light       device.Light
	clock       Clock
	settleDelay time.Duration

	brightness int
	color      *Color

	state StartupState
}

func newStartup(light device.Light, clock Clock, settleDelay time.Duration, brightness int, color *Color) *Startup {
	return &Startup{
		light:       light,
		clock:       clock,
		settleDelay: settleDelay,
		brightness:  brightness,
		color:       color,
		state:       StartupUninitialized,
	}
}

// State returns the current startup state.
func (s *Startup) State() StartupState {
	return s.state
}

// Run brings the light to the start state. startBrightness is the configured
// value (possibly 0); the state written is always at least 1%.
func (s *Startup) Run(ctx context.Context, startBrightness int) (StartupAction, error) {
	if s.state != StartupUninitialized {
		return 0, fmt.Errorf("startup already ran (state %s)", s.state)
	}
	s.state = StartupPresetting

	action := DetermineStartup(startBrightness, s.light.IsOn())
	log.Debug().
		Str("action", action.String()).
		Int("start_brightness", startBrightness).
		Msg("Determined startup action")

	switch action {
	case ActionPowerCycle:
		log.Info().Msg("Ensuring light is off before start")
		if err := s.light.TurnOff(ctx); err != nil {
			return action, fmt.Errorf("failed to turn off light: %w", err)
		}
		if err := s.clock.Sleep(ctx, s.settleDelay); err != nil {
			return action, ErrInterrupted
		}
		fallthrough

	case ActionPresetAndPowerOn:
		s.preset(ctx)

		log.Info().Int("bri", s.brightness).Msg("Turning light on")
		if err := s.light.TurnOn(ctx); err != nil {
			return action, fmt.Errorf("failed to turn on light: %w", err)
		}
	}

	// Power-on may restore a stale state, write the start state unconditionally.
	if err := s.apply(ctx); err != nil {
		return action, fmt.Errorf("failed to set start state: %w", err)
	}

	s.state = StartupStarted
	return action, nil
}

// preset writes the start state while the light is off. Many lights reject
// writes while off, so the result is discarded.
func (s *Startup) preset(ctx context.Context) {
	if err := s.apply(ctx); err != nil {
		log.Debug().Err(err).Msg("Preset while off rejected, continuing")
	}
}

func (s *Startup) apply(ctx context.Context) error {
	if s.color != nil {
		return s.light.SetColor(ctx, s.color.Hue, s.color.Saturation, s.brightness, 0)
	}
	return s.light.SetBrightness(ctx, s.brightness, 0)
}
