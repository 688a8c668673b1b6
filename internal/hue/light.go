// Package hue drives a single Philips Hue light through the bridge v1 API.
package hue

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/lightfade/internal/device"
)

// Light implements device.Light for a Hue light. Every command waits on a
// rate limiter so a short fade cannot flood the bridge.
type Light struct {
	client  *Client
	id      string
	numID   int
	limiter *rate.Limiter

	mu    sync.RWMutex
	light *huego.Light
	info  device.Info
}

// Connect resolves a light on the bridge and loads its current state.
// Any failure is reported as device.ErrConnection.
func Connect(ctx context.Context, client *Client, lightID string, rateLimitRPS float64) (*Light, error) {
	numID, err := strconv.Atoi(lightID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid light id %q", device.ErrConnection, lightID)
	}
	if rateLimitRPS <= 0 {
		rateLimitRPS = 10.0
	}

	l := &Light{
		client:  client,
		id:      lightID,
		numID:   numID,
		limiter: rate.NewLimiter(rate.Limit(rateLimitRPS), int(math.Max(1, rateLimitRPS))),
	}

	if err := l.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", device.ErrConnection, client.Address(), err)
	}

	info := l.Info()
	log.Info().
		Str("bridge", client.Address()).
		Str("light", lightID).
		Str("alias", info.Alias).
		Str("model", info.Model).
		Msg("Connected to Hue light")

	return l, nil
}

// Refresh reloads the light state from the bridge.
func (l *Light) Refresh(ctx context.Context) error {
	ctx, cancel := l.client.withTimeout(ctx)
	defer cancel()

	light, err := l.client.Bridge().GetLightContext(ctx, l.numID)
	if err != nil {
		return err
	}

	info := device.Info{
		Alias: light.Name,
		Model: light.ModelID,
	}
	if light.State != nil {
		info.On = light.State.On
		info.Brightness = briToPercent(light.State.Bri)
	}

	l.mu.Lock()
	l.light = light
	l.info = info
	l.mu.Unlock()

	return nil
}

// Info returns the cached light state.
func (l *Light) Info() device.Info {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.info
}

// IsOn reports the cached power state.
func (l *Light) IsOn() bool {
	return l.Info().On
}

// TurnOn powers the light on.
func (l *Light) TurnOn(ctx context.Context) error {
	return l.power(ctx, true)
}

// TurnOff powers the light off.
func (l *Light) TurnOff(ctx context.Context) error {
	return l.power(ctx, false)
}

func (l *Light) power(ctx context.Context, on bool) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	l.mu.RLock()
	light := l.light
	l.mu.RUnlock()
	if light == nil {
		return fmt.Errorf("light %s not loaded", l.id)
	}

	ctx, cancel := l.client.withTimeout(ctx)
	defer cancel()

	var err error
	if on {
		err = light.OnContext(ctx)
	} else {
		err = light.OffContext(ctx)
	}
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.info.On = on
	l.mu.Unlock()

	log.Debug().Str("light", l.id).Bool("on", on).Msg("Light power changed")
	return nil
}

// SetBrightness sets the brightness in percent.
// The bridge rejects this while the light is off.
func (l *Light) SetBrightness(ctx context.Context, percent int, transition time.Duration) error {
	state := map[string]interface{}{
		"bri":            percentToBri(percent),
		"transitiontime": transitionTime(transition),
	}
	return l.setState(ctx, state, percent)
}

// SetColor sets hue (degrees), saturation and brightness (percent).
func (l *Light) SetColor(ctx context.Context, hue, saturation, brightness int, transition time.Duration) error {
	state := map[string]interface{}{
		"hue":            degreesToHue(hue),
		"sat":            percentToSat(saturation),
		"bri":            percentToBri(brightness),
		"transitiontime": transitionTime(transition),
	}
	return l.setState(ctx, state, brightness)
}

func (l *Light) setState(ctx context.Context, state map[string]interface{}, percent int) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	if err := l.client.SetLightState(ctx, l.id, state); err != nil {
		return err
	}

	l.mu.Lock()
	l.info.Brightness = percent
	l.mu.Unlock()

	return nil
}

// percentToBri maps 1..100% onto the bridge's 1..254 scale.
func percentToBri(percent int) uint8 {
	v := math.Round(float64(percent) * 254 / 100)
	return uint8(math.Max(1, math.Min(254, v)))
}

// briToPercent never reports a non-zero bri as 0%, which would read as "off".
func briToPercent(bri uint8) int {
	if bri == 0 {
		return 0
	}
	return int(math.Max(1, math.Round(float64(bri)*100/254)))
}

// degreesToHue maps 0..360 degrees onto the bridge's 0..65535 wheel.
func degreesToHue(degrees int) uint16 {
	v := math.Round(float64(degrees) * 65535 / 360)
	return uint16(math.Max(0, math.Min(65535, v)))
}

func percentToSat(percent int) uint8 {
	v := math.Round(float64(percent) * 254 / 100)
	return uint8(math.Max(0, math.Min(254, v)))
}

// transitionTime converts to the bridge's 100ms units.
func transitionTime(d time.Duration) uint16 {
	if d <= 0 {
		return 0
	}
	ds := d / (100 * time.Millisecond)
	if ds > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(ds)
}
