package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightfade/internal/config"
	"github.com/dokzlo13/lightfade/internal/db"
	"github.com/dokzlo13/lightfade/internal/device"
	"github.com/dokzlo13/lightfade/internal/eventbus"
	"github.com/dokzlo13/lightfade/internal/fade"
	"github.com/dokzlo13/lightfade/internal/ledger"
)

func testConfig(t *testing.T, session string) (*config.Config, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "lightfade.sqlite")
	data := fmt.Sprintf("database:\n  path: %s\nsession:\n%s", dbPath, session)
	cfg, err := config.Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := cfg.Validate(true); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return cfg, dbPath
}

func staticLight(light device.Light) LightConnector {
	return func(ctx context.Context) (device.Light, error) {
		return light, nil
	}
}

func TestRunRecordsSession(t *testing.T) {
	cfg, dbPath := testConfig(t, "  duration: 40ms\n  start_brightness: 0\n  end_brightness: 100\n")
	light := device.NewDryRun("test", false, 0)

	a, err := NewWithConnector(cfg, staticLight(light))
	if err != nil {
		t.Fatalf("NewWithConnector() error = %v", err)
	}

	summary, err := a.Run(context.Background())
	a.Close()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Phase != fade.PhaseComplete || summary.Steps != fade.DefaultTotalSteps+1 {
		t.Errorf("Summary = %+v, want complete with %d steps", summary, fade.DefaultTotalSteps+1)
	}
	if info := light.Info(); !info.On || info.Brightness != 100 {
		t.Errorf("light = %+v, want on at 100", info)
	}

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	defer database.Close()

	entries, err := ledger.New(database.DB).GetBySession(summary.SessionID)
	if err != nil {
		t.Fatalf("GetBySession() error = %v", err)
	}
	var types []string
	for _, e := range entries {
		types = append(types, string(e.EventType))
	}
	want := "session_started,startup,session_completed"
	if got := strings.Join(types, ","); got != want {
		t.Errorf("ledger = %s, want %s", got, want)
	}
}

func TestRunStartFromCurrent(t *testing.T) {
	tests := []struct {
		name       string
		on         bool
		brightness int
		end        int
		wantErr    error
		wantOn     bool
	}{
		{"on/already_at_target", true, 40, 40, ErrAlreadyAtTarget, true},
		{"off/already_at_target", false, 70, 0, ErrAlreadyAtTarget, false},
		{"on/dims_to_off", true, 70, 0, nil, false},
		{"on/lowest_brightness_to_off", true, 0, 0, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := fmt.Sprintf("  duration: 20ms\n  start_from_current: true\n  end_brightness: %d\n", tt.end)
			cfg, _ := testConfig(t, session)
			light := device.NewDryRun("test", tt.on, tt.brightness)

			a, err := NewWithConnector(cfg, staticLight(light))
			if err != nil {
				t.Fatalf("NewWithConnector() error = %v", err)
			}
			defer a.Close()

			_, err = a.Run(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if light.IsOn() != tt.wantOn {
				t.Errorf("IsOn() = %v, want %v", light.IsOn(), tt.wantOn)
			}
		})
	}
}

// powerCountingLight records power-off commands on top of the dry-run light.
type powerCountingLight struct {
	*device.DryRun
	offs    int
	failOff error
}

func (l *powerCountingLight) TurnOff(ctx context.Context) error {
	l.offs++
	if l.failOff != nil {
		return l.failOff
	}
	return l.DryRun.TurnOff(ctx)
}

func TestRunStartFromCurrentLowestBrightness(t *testing.T) {
	cfg, _ := testConfig(t, "  duration: 20ms\n  start_from_current: true\n  end_brightness: 50\n")
	light := &powerCountingLight{DryRun: device.NewDryRun("test", true, 0)}

	a, err := NewWithConnector(cfg, staticLight(light))
	if err != nil {
		t.Fatalf("NewWithConnector() error = %v", err)
	}
	defer a.Close()

	if _, err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if light.offs != 0 {
		t.Errorf("TurnOff called %d times, a lit light must not be power cycled", light.offs)
	}
	if info := light.Info(); !info.On || info.Brightness != 50 {
		t.Errorf("light = %+v, want on at 50", info)
	}
}

func TestLastSession(t *testing.T) {
	cfg, _ := testConfig(t, "  duration: 20ms\n  start_brightness: 10\n  end_brightness: 20\n")

	first, err := NewWithConnector(cfg, staticLight(device.NewDryRun("test", true, 10)))
	if err != nil {
		t.Fatalf("NewWithConnector() error = %v", err)
	}
	if last, err := first.services.LastSession(); err != nil || last != nil {
		t.Fatalf("LastSession() on a fresh ledger = %+v, %v; want nil, nil", last, err)
	}
	summary, err := first.Run(context.Background())
	first.Close()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	second, err := NewWithConnector(cfg, staticLight(device.NewDryRun("test", true, 20)))
	if err != nil {
		t.Fatalf("NewWithConnector() error = %v", err)
	}
	defer second.Close()

	last, err := second.services.LastSession()
	if err != nil {
		t.Fatalf("LastSession() error = %v", err)
	}
	if last == nil || last.SessionID != summary.SessionID {
		t.Fatalf("LastSession() = %+v, want session %s", last, summary.SessionID)
	}
	if last.EventType != eventbus.EventSessionCompleted {
		t.Errorf("LastSession().EventType = %s, want %s", last.EventType, eventbus.EventSessionCompleted)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunLogsSessionFailure(t *testing.T) {
	out := &syncBuffer{}
	prev := log.Logger
	log.Logger = zerolog.New(out)
	defer func() { log.Logger = prev }()

	cfg, _ := testConfig(t, "  duration: 20ms\n  start_brightness: 50\n  end_brightness: 0\n")
	light := &powerCountingLight{
		DryRun:  device.NewDryRun("test", true, 50),
		failOff: fmt.Errorf("%w: bridge went away", device.ErrConnection),
	}

	a, err := NewWithConnector(cfg, staticLight(light))
	if err != nil {
		t.Fatalf("NewWithConnector() error = %v", err)
	}
	summary, err := a.Run(context.Background())
	a.Close()

	if err == nil {
		t.Fatal("Run() should fail when the final power-off fails")
	}
	if summary.FailedIn != fade.PhaseFinalizing {
		t.Errorf("Summary.FailedIn = %s, want finalizing", summary.FailedIn)
	}

	logged := out.String()
	for _, want := range []string{
		`"message":"Fade session failed"`,
		`"failed_in":"finalizing"`,
		`"session":"` + summary.SessionID + `"`,
		`"last_bri":1`,
	} {
		if !strings.Contains(logged, want) {
			t.Errorf("log output missing %s\n%s", want, logged)
		}
	}
}

func TestRunConnectionError(t *testing.T) {
	cfg, _ := testConfig(t, "  duration: 1s\n")
	a, err := NewWithConnector(cfg, func(ctx context.Context) (device.Light, error) {
		return nil, fmt.Errorf("%w: bridge unreachable", device.ErrConnection)
	})
	if err != nil {
		t.Fatalf("NewWithConnector() error = %v", err)
	}
	defer a.Close()

	if _, err := a.Run(context.Background()); !errors.Is(err, device.ErrConnection) {
		t.Errorf("Run() error = %v, want ErrConnection", err)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	cfg, _ := testConfig(t, "  duration: 1s\n")
	a, err := NewWithConnector(cfg, func(ctx context.Context) (device.Light, error) {
		panic("driver bug")
	})
	if err != nil {
		t.Fatalf("NewWithConnector() error = %v", err)
	}
	defer a.Close()

	_, err = a.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "driver bug") {
		t.Errorf("Run() error = %v, want recovered panic", err)
	}
}

func TestRunInterrupted(t *testing.T) {
	cfg, _ := testConfig(t, "  duration: 1h\n  start_brightness: 100\n")
	light := device.NewDryRun("test", true, 100)

	a, err := NewWithConnector(cfg, staticLight(light))
	if err != nil {
		t.Fatalf("NewWithConnector() error = %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := a.Run(ctx)
	if !errors.Is(err, fade.ErrInterrupted) {
		t.Fatalf("Run() error = %v, want ErrInterrupted", err)
	}
	if summary.Phase != fade.PhaseInterrupted {
		t.Errorf("Summary.Phase = %s, want interrupted", summary.Phase)
	}
	if !light.IsOn() {
		t.Error("light must stay on after interruption")
	}
}

func TestRunCurveScript(t *testing.T) {
	cfg, _ := testConfig(t, "  duration: 20ms\n  curve_script: /nonexistent/curve.lua\n")
	a, err := NewWithConnector(cfg, staticLight(device.NewDryRun("test", true, 50)))
	if err != nil {
		t.Fatalf("NewWithConnector() error = %v", err)
	}
	defer a.Close()

	if _, err := a.Run(context.Background()); err == nil {
		t.Error("Run() should fail when the curve script cannot be loaded")
	}
}

func TestColorHex(t *testing.T) {
	tests := []struct {
		hue, sat, bri int
		expected      string
	}{
		{0, 100, 100, "#ff0000"},
		{120, 100, 50, "#008000"},
		{0, 0, 100, "#ffffff"},
		{0, 0, 0, "#000000"},
	}

	for _, tt := range tests {
		if got := ColorHex(tt.hue, tt.sat, tt.bri); got != tt.expected {
			t.Errorf("ColorHex(%d, %d, %d) = %s, want %s", tt.hue, tt.sat, tt.bri, got, tt.expected)
		}
	}
}

func TestProgressReporterBuckets(t *testing.T) {
	p := NewProgressReporter()
	p.Handle(eventbus.Event{Type: eventbus.EventSessionStarted, Data: map[string]interface{}{
		"session_id": "s1", "direction": "sunrise",
	}})

	step := func(i int) {
		p.Handle(eventbus.Event{Type: eventbus.EventStep, Data: map[string]interface{}{
			"session_id": "s1", "step": i, "total_steps": 200, "bri": i / 2, "hue": 10, "sat": 50,
		}})
	}

	tests := []struct {
		step     int
		expected int
	}{
		{0, 0},
		{15, 0},
		{20, 10},
		{105, 50},
		{90, 50}, // never goes backwards
		{200, 100},
	}
	for _, tt := range tests {
		step(tt.step)
		p.mu.Lock()
		got := p.reported["s1"]
		p.mu.Unlock()
		if got != tt.expected {
			t.Errorf("after step %d reported = %d, want %d", tt.step, got, tt.expected)
		}
	}

	p.Handle(eventbus.Event{Type: eventbus.EventSessionCompleted, Data: map[string]interface{}{"session_id": "s1"}})
	if _, ok := p.reported["s1"]; ok {
		t.Error("completed session should be forgotten")
	}
}
