// Package fade implements the time-lapse fade engine: easing curves,
// brightness/color interpolation, flash-free startup and a drift-corrected
// step scheduler.
package fade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightfade/internal/device"
	"github.com/dokzlo13/lightfade/internal/eventbus"
)

// DefaultTotalSteps bounds the command rate independently of the duration.
const DefaultTotalSteps = 200

// ErrInterrupted is returned when the session is stopped before completion.
// The light is left in its last commanded state.
var ErrInterrupted = errors.New("fade interrupted")

// Config is the immutable description of one fade.
type Config struct {
	Duration           time.Duration
	StartBrightness    int
	EndBrightness      int
	Easing             bool
	HardwareTransition bool
	ColorEnabled       bool
	Palette            Palette

	// Optional overrides, zero values select the defaults.
	TotalSteps  int
	SettleDelay time.Duration
	Curve       CurveFunc
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", c.Duration)
	}
	if c.StartBrightness < 0 || c.StartBrightness > MaxBrightness {
		return fmt.Errorf("start brightness must be in [0,100], got %d", c.StartBrightness)
	}
	if c.EndBrightness < 0 || c.EndBrightness > MaxBrightness {
		return fmt.Errorf("end brightness must be in [0,100], got %d", c.EndBrightness)
	}
	if c.TotalSteps < 0 {
		return fmt.Errorf("total steps must not be negative, got %d", c.TotalSteps)
	}
	if c.ColorEnabled {
		for _, col := range []Color{c.Palette.Deep, c.Palette.Warm} {
			if col.Hue < 0 || col.Hue > 360 || col.Saturation < 0 || col.Saturation > 100 {
				return fmt.Errorf("invalid palette color %+v", col)
			}
		}
	}
	return nil
}

// Phase is the scheduler's lifecycle state.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseRunning
	PhaseFinalizing
	PhaseComplete
	PhaseInterrupted
	PhaseFailed
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseRunning:
		return "running"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseComplete:
		return "complete"
	case PhaseInterrupted:
		return "interrupted"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Summary describes a finished (or stopped) session.
type Summary struct {
	SessionID  string
	Phase      Phase
	FailedIn   Phase // phase the session was in when it stopped early
	Steps      int   // steps dispatched
	Failed     int // steps whose command failed
	Elapsed    time.Duration
	Slept      time.Duration // total time spent waiting for ticks
	LastResult *Result
}

// Publisher receives session events.
type Publisher interface {
	Publish(event eventbus.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(eventbus.Event) {}

// Session owns a light for the duration of one fade.
type Session struct {
	id        string
	cfg       Config
	light     device.Light
	clock     Clock
	publisher Publisher

	direction    Direction
	colorMode    ColorMode
	curve        CurveFunc
	interp       Interpolator
	totalSteps   int
	interval     time.Duration
	startupState *Startup
	dispatcher   *Dispatcher

	phase Phase
}

// New creates a session. A nil clock selects the system clock and a nil
// publisher discards events.
func New(cfg Config, light device.Light, clock Clock, publisher Publisher) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if light == nil {
		return nil, errors.New("light is required")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}

	totalSteps := cfg.TotalSteps
	if totalSteps == 0 {
		totalSteps = DefaultTotalSteps
	}
	settle := cfg.SettleDelay
	if settle == 0 {
		settle = DefaultSettleDelay
	}
	curve := Curve
	if cfg.Curve != nil {
		curve = cfg.Curve
	}
	palette := cfg.Palette
	if palette.HuePath == "" {
		palette.HuePath = HuePathLinear
	}

	s := &Session{
		id:         uuid.NewString(),
		cfg:        cfg,
		light:      light,
		clock:      clock,
		publisher:  publisher,
		direction:  directionFor(cfg.StartBrightness, cfg.EndBrightness, cfg.Easing),
		colorMode:  colorModeFor(cfg.StartBrightness, cfg.EndBrightness, cfg.ColorEnabled),
		curve:      pinned(curve),
		totalSteps: totalSteps,
		interval:   cfg.Duration / time.Duration(totalSteps),
		phase:      PhaseInitializing,
	}

	s.interp = Interpolator{
		StartBrightness: cfg.StartBrightness,
		EndBrightness:   cfg.EndBrightness,
		HuePath:         palette.HuePath,
	}
	switch s.colorMode {
	case ColorModeSunrise:
		s.interp.StartColor, s.interp.EndColor = &palette.Deep, &palette.Warm
	case ColorModeSunset:
		s.interp.StartColor, s.interp.EndColor = &palette.Warm, &palette.Deep
	}

	s.startupState = newStartup(light, clock, settle, clampBrightness(cfg.StartBrightness), s.interp.StartColor)
	s.dispatcher = NewDispatcher(light, clock, cfg.HardwareTransition)

	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Direction returns the easing direction.
func (s *Session) Direction() Direction { return s.direction }

// ColorMode returns the derived color mode.
func (s *Session) ColorMode() ColorMode { return s.colorMode }

// Interval returns the nominal time between steps.
func (s *Session) Interval() time.Duration { return s.interval }

// TotalSteps returns the number of step intervals; the session issues TotalSteps+1 commands.
func (s *Session) TotalSteps() int { return s.totalSteps }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase { return s.phase }

// StepAt computes the targets for step index i. It has no side effects.
func (s *Session) StepAt(i int) Step {
	linear := float64(i) / float64(s.totalSteps)
	curve := s.curve(linear, s.direction)

	return Step{
		Index:      i,
		Linear:     linear,
		Curve:      curve,
		Brightness: s.interp.Brightness(curve),
		Color:      s.interp.Color(curve),
		Transition: TransitionHint(s.interval),
	}
}

// tickAt returns the absolute time step i+1 is due, in integer nanoseconds
// so rounding never accumulates across steps. It equals
// Duration*(i+1)/N without forming the product, which overflows for long
// durations.
func (s *Session) tickAt(start time.Time, i int) time.Time {
	n := time.Duration(s.totalSteps)
	k := time.Duration(i + 1)
	remainder := s.cfg.Duration % n
	return start.Add(s.interval*k + remainder*k/n)
}

// Run executes the fade. It returns ErrInterrupted if ctx is cancelled while
// waiting; any other error means the light could not be brought into or out
// of the fade and the session stopped without finalizing.
func (s *Session) Run(ctx context.Context) (Summary, error) {
	summary := Summary{SessionID: s.id}
	begin := s.clock.Now()

	s.publish(eventbus.EventSessionStarted, map[string]interface{}{
		"direction":        s.direction.String(),
		"color_mode":       s.colorMode.String(),
		"duration_ms":      s.cfg.Duration.Milliseconds(),
		"interval_ms":      s.interval.Milliseconds(),
		"total_steps":      s.totalSteps,
		"start_brightness": s.cfg.StartBrightness,
		"end_brightness":   s.cfg.EndBrightness,
	})

	action, err := s.startupState.Run(ctx, s.cfg.StartBrightness)
	if err != nil {
		return s.stop(summary, begin, err)
	}
	s.publish(eventbus.EventStartup, map[string]interface{}{
		"action": action.String(),
	})

	s.phase = PhaseRunning
	start := s.clock.Now()

	log.Info().
		Str("session", s.id).
		Str("direction", s.direction.String()).
		Dur("interval", s.interval).
		Msg("Time-lapse started")

	for i := 0; i <= s.totalSteps; i++ {
		result := s.dispatcher.Dispatch(ctx, s.StepAt(i))
		summary.Steps++
		if !result.OK() {
			summary.Failed++
		}
		summary.LastResult = &result
		s.publishStep(result)

		if i == s.totalSteps {
			break
		}

		wait := s.tickAt(start, i).Sub(s.clock.Now())
		if wait < 0 {
			wait = 0
		}
		if err := s.clock.Sleep(ctx, wait); err != nil {
			return s.stop(summary, begin, ErrInterrupted)
		}
		summary.Slept += wait
	}

	s.phase = PhaseFinalizing
	if s.cfg.EndBrightness == 0 {
		log.Info().Msg("Turning light off")
		if err := s.light.TurnOff(ctx); err != nil {
			return s.stop(summary, begin, fmt.Errorf("failed to turn off light: %w", err))
		}
	}

	s.phase = PhaseComplete
	summary.Phase = s.phase
	summary.Elapsed = s.clock.Now().Sub(begin)

	s.publish(eventbus.EventSessionCompleted, map[string]interface{}{
		"steps":      summary.Steps,
		"failed":     summary.Failed,
		"elapsed_ms": summary.Elapsed.Milliseconds(),
	})

	return summary, nil
}

// stop ends the session early without finalizing.
func (s *Session) stop(summary Summary, begin time.Time, err error) (Summary, error) {
	summary.FailedIn = s.phase

	eventType := eventbus.EventSessionFailed
	s.phase = PhaseFailed
	if errors.Is(err, ErrInterrupted) {
		eventType = eventbus.EventSessionInterrupted
		s.phase = PhaseInterrupted
	}

	summary.Phase = s.phase
	summary.Elapsed = s.clock.Now().Sub(begin)

	s.publish(eventType, map[string]interface{}{
		"steps":     summary.Steps,
		"failed_in": summary.FailedIn.String(),
		"error":     err.Error(),
	})

	return summary, err
}

func (s *Session) publishStep(r Result) {
	data := map[string]interface{}{
		"step":        r.Step.Index,
		"total_steps": s.totalSteps,
		"linear":      r.Step.Linear,
		"curve":       r.Step.Curve,
		"bri":         r.Step.Brightness,
		"elapsed_ms":  r.Elapsed.Milliseconds(),
	}
	if r.Step.Color != nil {
		data["hue"] = r.Step.Color.Hue
		data["sat"] = r.Step.Color.Saturation
	}

	eventType := eventbus.EventStep
	if r.Err != nil {
		eventType = eventbus.EventStepFailed
		data["error"] = r.Err.Error()
	}

	s.publish(eventType, data)
}

func (s *Session) publish(eventType eventbus.EventType, data map[string]interface{}) {
	data["session_id"] = s.id
	s.publisher.Publish(eventbus.Event{Type: eventType, Data: data})
}
