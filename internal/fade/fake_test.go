package fade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dokzlo13/lightfade/internal/device"
	"github.com/dokzlo13/lightfade/internal/eventbus"
)

// fakeClock advances only when slept on or when a command is charged to it.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.advance(d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeLight records every command. Like a real lamp it rejects state writes while off.
type fakeLight struct {
	on         bool
	brightness int
	calls      []string

	clock     *fakeClock    // optional, charged cmdCost per state write
	cmdCost   time.Duration // simulated command latency
	failSets  map[int]error // state write ordinal (0-based) -> error
	setCount  int
	afterSet  func(n int) // called after every state write with its ordinal
	powerFail error
}

func (l *fakeLight) Refresh(ctx context.Context) error { return nil }

func (l *fakeLight) Info() device.Info {
	return device.Info{Alias: "fake", Model: "test", On: l.on, Brightness: l.brightness}
}

func (l *fakeLight) IsOn() bool { return l.on }

func (l *fakeLight) TurnOn(ctx context.Context) error {
	l.calls = append(l.calls, "on")
	if l.powerFail != nil {
		return l.powerFail
	}
	l.on = true
	return nil
}

func (l *fakeLight) TurnOff(ctx context.Context) error {
	l.calls = append(l.calls, "off")
	if l.powerFail != nil {
		return l.powerFail
	}
	l.on = false
	return nil
}

func (l *fakeLight) SetBrightness(ctx context.Context, percent int, transition time.Duration) error {
	return l.set(fmt.Sprintf("bri:%d/%s", percent, transition), percent)
}

func (l *fakeLight) SetColor(ctx context.Context, hue, saturation, brightness int, transition time.Duration) error {
	return l.set(fmt.Sprintf("color:%d,%d,%d/%s", hue, saturation, brightness, transition), brightness)
}

func (l *fakeLight) set(call string, brightness int) error {
	n := l.setCount
	l.setCount++
	defer func() {
		if l.afterSet != nil {
			l.afterSet(n)
		}
	}()

	if l.clock != nil {
		l.clock.advance(l.cmdCost)
	}
	if err, ok := l.failSets[n]; ok {
		l.calls = append(l.calls, call+"!")
		return err
	}
	if !l.on {
		l.calls = append(l.calls, call+"!")
		return device.ErrRejected
	}
	l.calls = append(l.calls, call)
	l.brightness = brightness
	return nil
}

// recordingPublisher collects published events synchronously.
type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) Publish(event eventbus.Event) {
	p.events = append(p.events, string(event.Type))
}
