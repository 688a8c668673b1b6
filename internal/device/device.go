// Package device defines the contract the fade engine uses to drive a lamp.
package device

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrConnection is returned when the device cannot be reached or authenticated.
	ErrConnection = errors.New("device connection failed")

	// ErrRejected is returned when the device refuses a command, e.g. a
	// brightness or color write while powered off.
	ErrRejected = errors.New("device rejected command")
)

// Info is the cached device state populated by Refresh.
type Info struct {
	Alias      string
	Model      string
	On         bool
	Brightness int // percent, 0 when unknown
}

// Light is a single network-controlled lamp.
// A zero transition means the change is applied instantaneously.
type Light interface {
	Refresh(ctx context.Context) error
	Info() Info
	IsOn() bool
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	SetBrightness(ctx context.Context, percent int, transition time.Duration) error
	SetColor(ctx context.Context, hue, saturation, brightness int, transition time.Duration) error
}
