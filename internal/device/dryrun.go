package device

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DryRun is an in-memory light that logs every command instead of sending it.
// Like most real lamps it rejects brightness and color writes while off.
type DryRun struct {
	mu   sync.Mutex
	info Info
}

// NewDryRun creates a dry-run light with the given initial state.
func NewDryRun(alias string, on bool, brightness int) *DryRun {
	return &DryRun{
		info: Info{
			Alias:      alias,
			Model:      "dry-run",
			On:         on,
			Brightness: brightness,
		},
	}
}

// Refresh is a no-op, the in-memory state is always current.
func (d *DryRun) Refresh(ctx context.Context) error {
	return ctx.Err()
}

// Info returns the current simulated state.
func (d *DryRun) Info() Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// IsOn reports the simulated power state.
func (d *DryRun) IsOn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info.On
}

// TurnOn powers the simulated light on.
func (d *DryRun) TurnOn(ctx context.Context) error {
	d.mu.Lock()
	d.info.On = true
	alias := d.info.Alias
	d.mu.Unlock()

	log.Info().Str("light", alias).Msg("[dry-run] Turning on light")
	return nil
}

// TurnOff powers the simulated light off.
func (d *DryRun) TurnOff(ctx context.Context) error {
	d.mu.Lock()
	d.info.On = false
	alias := d.info.Alias
	d.mu.Unlock()

	log.Info().Str("light", alias).Msg("[dry-run] Turning off light")
	return nil
}

// SetBrightness records the brightness if the light is on.
func (d *DryRun) SetBrightness(ctx context.Context, percent int, transition time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.info.On {
		return ErrRejected
	}
	d.info.Brightness = percent

	log.Debug().
		Str("light", d.info.Alias).
		Int("bri", percent).
		Dur("transition", transition).
		Msg("[dry-run] Set brightness")
	return nil
}

// SetColor records the brightness and logs the color if the light is on.
func (d *DryRun) SetColor(ctx context.Context, hue, saturation, brightness int, transition time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.info.On {
		return ErrRejected
	}
	d.info.Brightness = brightness

	log.Debug().
		Str("light", d.info.Alias).
		Int("hue", hue).
		Int("sat", saturation).
		Int("bri", brightness).
		Dur("transition", transition).
		Msg("[dry-run] Set color")
	return nil
}
