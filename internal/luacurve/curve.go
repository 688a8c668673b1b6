// Package luacurve loads easing curves written in Lua.
//
// A script defines a global function
//
//	function curve(progress, direction) return progress end
//
// where direction is "sunrise", "sunset" or "linear". Scripts get the base
// and math libraries only, with the base loaders removed.
package luacurve

import (
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lightfade/internal/fade"
)

const (
	funcName = "curve"

	// validationSamples matches the default step count so every progress
	// value a session can ask for is checked at load time.
	validationSamples = fade.DefaultTotalSteps
	monotonicEpsilon  = 1e-9
)

// blockedGlobals are base library functions that load code from files or strings.
var blockedGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "module"}

// Curve is a loaded and validated Lua easing curve.
// The Lua state is not goroutine-safe; calls are serialized.
type Curve struct {
	mu sync.Mutex
	L  *lua.LState
	fn *lua.LFunction
}

// Load reads a curve script from disk.
func Load(path string) (*Curve, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read curve script: %w", err)
	}
	c, err := LoadString(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Info().Str("script", path).Msg("Loaded curve script")
	return c, nil
}

// LoadString compiles a curve script and validates it.
func LoadString(src string) (*Curve, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	if err := openLibs(L); err != nil {
		L.Close()
		return nil, err
	}

	if err := L.DoString(src); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to run curve script: %w", err)
	}

	fn, ok := L.GetGlobal(funcName).(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("curve script must define function %q", funcName)
	}

	c := &Curve{L: L, fn: fn}
	if err := c.validate(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func openLibs(L *lua.LState) error {
	libs := []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name))
		if err != nil {
			return fmt.Errorf("failed to open lua library %s: %w", lib.name, err)
		}
	}

	// No access to files or dynamically loaded code.
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return nil
}

// Eval calls the script for one progress value.
func (c *Curve) Eval(progress float64, direction fade.Direction) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.L.CallByParam(lua.P{
		Fn:      c.fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(progress), lua.LString(direction.String()))
	if err != nil {
		return 0, err
	}

	ret := c.L.Get(-1)
	c.L.Pop(1)

	num, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("curve returned %s, want number", ret.Type().String())
	}
	return float64(num), nil
}

// validate samples every direction and rejects values outside [0,1],
// NaN, and decreasing sequences.
func (c *Curve) validate() error {
	for _, dir := range []fade.Direction{fade.DirectionLinear, fade.DirectionSunrise, fade.DirectionSunset} {
		prev := 0.0
		for i := 0; i <= validationSamples; i++ {
			p := float64(i) / validationSamples
			v, err := c.Eval(p, dir)
			if err != nil {
				return fmt.Errorf("curve(%g, %s): %w", p, dir, err)
			}
			if math.IsNaN(v) || v < 0 || v > 1 {
				return fmt.Errorf("curve(%g, %s) = %g, want value in [0,1]", p, dir, v)
			}
			if v+monotonicEpsilon < prev {
				return fmt.Errorf("curve(%g, %s) = %g decreases from %g", p, dir, v, prev)
			}
			prev = v
		}
	}
	return nil
}

// Func adapts the script to a fade.CurveFunc. A script error at run time
// falls back to the built-in curve for that step.
func (c *Curve) Func() fade.CurveFunc {
	return func(progress float64, direction fade.Direction) float64 {
		v, err := c.Eval(progress, direction)
		if err != nil || math.IsNaN(v) {
			log.Warn().Err(err).Float64("progress", progress).Msg("Curve script failed, using built-in curve")
			return fade.Curve(progress, direction)
		}
		return v
	}
}

// Close releases the Lua state.
func (c *Curve) Close() {
	c.L.Close()
}
