package fade

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightfade/internal/device"
)

// Result is the outcome of one step command. A failed step does not stop the
// session; the next step moves the light back onto the trajectory.
type Result struct {
	Step    Step
	Err     error
	Elapsed time.Duration
}

// OK reports whether the command succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Dispatcher issues one command per step.
type Dispatcher struct {
	light              device.Light
	clock              Clock
	hardwareTransition bool
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(light device.Light, clock Clock, hardwareTransition bool) *Dispatcher {
	return &Dispatcher{
		light:              light,
		clock:              clock,
		hardwareTransition: hardwareTransition,
	}
}

// Dispatch sends the step's targets to the light.
// The transition hint is only sent when it exceeds the 100ms margin;
// shorter hardware interpolation is not meaningful.
func (d *Dispatcher) Dispatch(ctx context.Context, step Step) Result {
	var transition time.Duration
	if d.hardwareTransition && step.Transition > transitionMargin {
		transition = step.Transition
	}

	started := d.clock.Now()

	var err error
	if step.Color != nil {
		err = d.light.SetColor(ctx, step.Color.Hue, step.Color.Saturation, step.Brightness, transition)
	} else {
		err = d.light.SetBrightness(ctx, step.Brightness, transition)
	}

	result := Result{
		Step:    step,
		Err:     err,
		Elapsed: d.clock.Now().Sub(started),
	}

	if err != nil {
		log.Warn().
			Err(err).
			Int("step", step.Index).
			Int("bri", step.Brightness).
			Msg("Step command failed, continuing")
	}

	return result
}
