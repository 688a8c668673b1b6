package app

import (
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightfade/internal/eventbus"
)

// progressEvery is the reporting granularity in percent.
const progressEvery = 10

// ProgressReporter renders session events as console banners.
type ProgressReporter struct {
	mu       sync.Mutex
	reported map[string]int // session id -> last reported percent
}

// NewProgressReporter creates a new progress reporter.
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{reported: make(map[string]int)}
}

// Handle is an eventbus.Handler.
func (p *ProgressReporter) Handle(event eventbus.Event) {
	sessionID, _ := event.Data["session_id"].(string)

	switch event.Type {
	case eventbus.EventSessionStarted:
		mode := "standard"
		if dir, _ := event.Data["direction"].(string); dir != "linear" {
			mode = dir
		}
		log.Info().
			Str("session", sessionID).
			Str("mode", mode).
			Interface("color_mode", event.Data["color_mode"]).
			Interface("from", event.Data["start_brightness"]).
			Interface("to", event.Data["end_brightness"]).
			Interface("interval_ms", event.Data["interval_ms"]).
			Msg("=== Starting time-lapse ===")

		p.mu.Lock()
		p.reported[sessionID] = -1
		p.mu.Unlock()

	case eventbus.EventStartup:
		log.Info().Str("session", sessionID).Interface("action", event.Data["action"]).Msg("=== Light ready ===")

	case eventbus.EventStep, eventbus.EventStepFailed:
		p.handleStep(sessionID, event)

	case eventbus.EventSessionCompleted:
		log.Info().
			Str("session", sessionID).
			Interface("steps", event.Data["steps"]).
			Interface("failed", event.Data["failed"]).
			Interface("elapsed_ms", event.Data["elapsed_ms"]).
			Msg("=== Time-lapse complete ===")
		p.forget(sessionID)

	case eventbus.EventSessionInterrupted:
		log.Warn().Str("session", sessionID).Interface("steps", event.Data["steps"]).Msg("=== Time-lapse interrupted ===")
		p.forget(sessionID)

	case eventbus.EventSessionFailed:
		log.Error().Str("session", sessionID).Interface("error", event.Data["error"]).Msg("=== Time-lapse failed ===")
		p.forget(sessionID)
	}
}

func (p *ProgressReporter) handleStep(sessionID string, event eventbus.Event) {
	if event.Type == eventbus.EventStepFailed {
		log.Warn().
			Str("session", sessionID).
			Interface("step", event.Data["step"]).
			Interface("error", event.Data["error"]).
			Msg("Step failed")
	}

	step, _ := event.Data["step"].(int)
	total, _ := event.Data["total_steps"].(int)
	if total <= 0 {
		return
	}

	percent := step * 100 / total
	bucket := percent - percent%progressEvery

	p.mu.Lock()
	last, ok := p.reported[sessionID]
	if ok && bucket <= last {
		p.mu.Unlock()
		return
	}
	p.reported[sessionID] = bucket
	p.mu.Unlock()

	bri, _ := event.Data["bri"].(int)
	logEvent := log.Info().
		Str("session", sessionID).
		Int("progress", percent).
		Int("step", step).
		Interface("curve", event.Data["curve"]).
		Int("bri", bri)

	if hue, ok := event.Data["hue"].(int); ok {
		sat, _ := event.Data["sat"].(int)
		logEvent = logEvent.
			Int("hue", hue).
			Int("sat", sat).
			Str("color", ColorHex(hue, sat, bri))
	}
	logEvent.Msg("Progress")
}

func (p *ProgressReporter) forget(sessionID string) {
	p.mu.Lock()
	delete(p.reported, sessionID)
	p.mu.Unlock()
}

// ColorHex renders an HSV target (degrees, percent, percent) as #rrggbb.
func ColorHex(hue, saturation, brightness int) string {
	return colorful.Hsv(float64(hue), float64(saturation)/100, float64(brightness)/100).Clamped().Hex()
}
