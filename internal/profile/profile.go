// SPDX-License-Identifier: MIT
/*
Package profile loads the ducking section of a device profile from YAML.

A profile names its inputs and routing cells as strings so it stays readable
and survives reordering of the device's channel enums. Parse resolves the
names, converts millisecond fields to durations and validates volumes before
handing back a ducking.Config ready for Engine.Load.
*/
package profile

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ducker/internal/ducking"
)

// MaxRouteVolume is the loudest volume a transition step may request.
const MaxRouteVolume = 100

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid profile")

// File is the on-disk profile document.
type File struct {
	Ducking Ducking `yaml:"ducking"`
}

// Ducking is the ducking section of a profile.
type Ducking struct {
	Enabled       bool                `yaml:"enabled"`
	InputSources  []string            `yaml:"input_sources"`
	AttackTimeMS  uint32              `yaml:"attack_time_ms"`
	ReleaseTimeMS uint32              `yaml:"release_time_ms"`
	Gate          Gate                `yaml:"gate"`
	OutputRouting map[string][]string `yaml:"output_routing"` // input channel -> outputs
	Transition    Transition          `yaml:"transition"`
}

// Gate configures the noise gate on the ducking input.
type Gate struct {
	ThresholdDB *float64 `yaml:"threshold_db"` // nil selects ducking.DefaultThresholdDB
	AttackMS    uint32   `yaml:"attack_ms"`
	ReleaseMS   uint32   `yaml:"release_ms"`
}

// Transition holds the two volume tables.
type Transition struct {
	Ducking   []Step `yaml:"ducking"`
	Unducking []Step `yaml:"unducking"`
}

// Step is one row of a transition table.
type Step struct {
	RouteVolume int    `yaml:"route_volume"`
	WaitTimeMS  uint32 `yaml:"wait_time_ms"`
}

// Load reads and parses the profile at path.
func Load(path string) (ducking.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ducking.Config{}, fmt.Errorf("failed to read profile: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return ducking.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML profile into a ducking configuration.
func Parse(data []byte) (ducking.Config, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return ducking.Config{}, fmt.Errorf("failed to parse profile: %w", err)
	}
	return f.Ducking.Config()
}

// Config validates the section and converts it.
func (d *Ducking) Config() (ducking.Config, error) {
	cfg := ducking.Config{
		Enabled:     d.Enabled,
		AttackTime:  ms(d.AttackTimeMS),
		ReleaseTime: ms(d.ReleaseTimeMS),
		Gate: ducking.GateParams{
			ThresholdDB: ducking.DefaultThresholdDB,
			Attack:      ms(d.Gate.AttackMS),
			Release:     ms(d.Gate.ReleaseMS),
		},
	}
	if d.Gate.ThresholdDB != nil {
		cfg.Gate.ThresholdDB = *d.Gate.ThresholdDB
	}

	for _, name := range d.InputSources {
		in, err := ducking.ParseInput(name)
		if err != nil {
			return ducking.Config{}, fmt.Errorf("%w: input_sources: %v", ErrInvalid, err)
		}
		cfg.InputSources[in] = true
	}

	for inName, outs := range d.OutputRouting {
		in, err := ducking.ParseInputChannel(inName)
		if err != nil {
			return ducking.Config{}, fmt.Errorf("%w: output_routing: %v", ErrInvalid, err)
		}
		for _, outName := range outs {
			out, err := ducking.ParseOutputChannel(outName)
			if err != nil {
				return ducking.Config{}, fmt.Errorf("%w: output_routing.%s: %v", ErrInvalid, inName, err)
			}
			cfg.OutputRouting.Set(in, out, true)
		}
	}

	var err error
	if cfg.DuckSteps, err = convertSteps("ducking", d.Transition.Ducking); err != nil {
		return ducking.Config{}, err
	}
	if cfg.UnduckSteps, err = convertSteps("unducking", d.Transition.Unducking); err != nil {
		return ducking.Config{}, err
	}
	return cfg, nil
}

func convertSteps(table string, steps []Step) ([]ducking.Step, error) {
	out := make([]ducking.Step, 0, len(steps))
	for i, s := range steps {
		if s.RouteVolume < 0 || s.RouteVolume > MaxRouteVolume {
			return nil, fmt.Errorf("%w: transition.%s[%d]: route_volume %d out of range 0-%d",
				ErrInvalid, table, i, s.RouteVolume, MaxRouteVolume)
		}
		out = append(out, ducking.Step{RouteVolume: uint8(s.RouteVolume), WaitTime: ms(s.WaitTimeMS)})
	}
	return out, nil
}

func ms(v uint32) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Default returns the built-in profile: once the mic has been loud for 100ms
// music and game step down to 30% in the headphones and on stream, and they
// step back to full after half a second of quiet.
func Default() ducking.Config {
	cfg := ducking.Config{
		Enabled:     true,
		AttackTime:  100 * time.Millisecond,
		ReleaseTime: 500 * time.Millisecond,
		Gate: ducking.GateParams{
			ThresholdDB: ducking.DefaultThresholdDB,
			Attack:      20 * time.Millisecond,
			Release:     200 * time.Millisecond,
		},
	}
	cfg.InputSources[ducking.InputMic] = true
	for _, in := range []ducking.InputChannel{ducking.ChannelMusic, ducking.ChannelGame} {
		cfg.OutputRouting.Set(in, ducking.OutputHeadphones, true)
		cfg.OutputRouting.Set(in, ducking.OutputBroadcastMix, true)
	}
	for _, v := range []uint8{80, 60, 45, 30} {
		cfg.DuckSteps = append(cfg.DuckSteps, ducking.Step{RouteVolume: v, WaitTime: 20 * time.Millisecond})
	}
	for _, v := range []uint8{45, 60, 80, 100} {
		cfg.UnduckSteps = append(cfg.UnduckSteps, ducking.Step{RouteVolume: v, WaitTime: 40 * time.Millisecond})
	}
	return cfg
}

// FromConfig converts a ducking configuration back into its profile form.
func FromConfig(cfg ducking.Config) File {
	d := Ducking{
		Enabled:       cfg.Enabled,
		AttackTimeMS:  uint32(cfg.AttackTime / time.Millisecond),
		ReleaseTimeMS: uint32(cfg.ReleaseTime / time.Millisecond),
		Gate: Gate{
			ThresholdDB: &cfg.Gate.ThresholdDB,
			AttackMS:    uint32(cfg.Gate.Attack / time.Millisecond),
			ReleaseMS:   uint32(cfg.Gate.Release / time.Millisecond),
		},
		OutputRouting: make(map[string][]string),
	}
	for in, on := range cfg.InputSources {
		if on {
			d.InputSources = append(d.InputSources, ducking.Input(in).String())
		}
	}
	for in := range cfg.OutputRouting {
		var outs []string
		for out, on := range cfg.OutputRouting[in] {
			if on {
				outs = append(outs, ducking.OutputChannel(out).String())
			}
		}
		if len(outs) > 0 {
			d.OutputRouting[ducking.InputChannel(in).String()] = outs
		}
	}
	for _, s := range cfg.DuckSteps {
		d.Transition.Ducking = append(d.Transition.Ducking, Step{int(s.RouteVolume), uint32(s.WaitTime / time.Millisecond)})
	}
	for _, s := range cfg.UnduckSteps {
		d.Transition.Unducking = append(d.Transition.Unducking, Step{int(s.RouteVolume), uint32(s.WaitTime / time.Millisecond)})
	}
	return File{Ducking: d}
}

// Marshal renders cfg as a profile document.
func Marshal(cfg ducking.Config) ([]byte, error) {
	return yaml.Marshal(FromConfig(cfg))
}

// RoutedCells lists the routed cells of cfg as "input -> output" strings in
// matrix order.
func RoutedCells(cfg ducking.Config) []string {
	var cells []string
	for in := range cfg.OutputRouting {
		for out, on := range cfg.OutputRouting[in] {
			if on {
				cells = append(cells, fmt.Sprintf("%s -> %s", ducking.InputChannel(in), ducking.OutputChannel(out)))
			}
		}
	}
	return cells
}
