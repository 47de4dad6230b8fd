// SPDX-License-Identifier: MIT
package ducking

import (
	"fmt"
	"strings"
	"time"
)

// FloorDB is the lowest level the mixer reports for a monitored source. The
// gate snaps to it when closed and returns it outright for muted sources.
const FloorDB = -72.2

// DefaultThresholdDB is the gate threshold used when a profile does not set one.
const DefaultThresholdDB = -20.0

// Input is a source that can request ducking.
type Input int

const (
	InputMic Input = iota
	InputCount
)

var inputNames = [InputCount]string{"mic"}

func (i Input) String() string {
	if i < 0 || i >= InputCount {
		return fmt.Sprintf("input(%d)", int(i))
	}
	return inputNames[i]
}

// InputChannel is a row in the device's routing matrix.
type InputChannel int

const (
	ChannelMic InputChannel = iota
	ChannelChat
	ChannelMusic
	ChannelGame
	ChannelConsole
	ChannelLineIn
	ChannelSystem
	ChannelSamples
	InputChannelCount
)

var inputChannelNames = [InputChannelCount]string{
	"mic", "chat", "music", "game", "console", "line_in", "system", "samples",
}

func (c InputChannel) String() string {
	if c < 0 || c >= InputChannelCount {
		return fmt.Sprintf("input_channel(%d)", int(c))
	}
	return inputChannelNames[c]
}

// OutputChannel is a column in the device's routing matrix.
type OutputChannel int

const (
	OutputHeadphones OutputChannel = iota
	OutputBroadcastMix
	OutputLineOut
	OutputChatMic
	OutputSampler
	OutputChannelCount
)

var outputChannelNames = [OutputChannelCount]string{
	"headphones", "broadcast_mix", "line_out", "chat_mic", "sampler",
}

func (c OutputChannel) String() string {
	if c < 0 || c >= OutputChannelCount {
		return fmt.Sprintf("output_channel(%d)", int(c))
	}
	return outputChannelNames[c]
}

func normaliseName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}

// ParseInput resolves a ducking input by name.
func ParseInput(name string) (Input, error) {
	n := normaliseName(name)
	for i, s := range inputNames {
		if s == n {
			return Input(i), nil
		}
	}
	return 0, fmt.Errorf("unknown ducking input %q", name)
}

// ParseInputChannel resolves a routing input channel by name.
func ParseInputChannel(name string) (InputChannel, error) {
	n := normaliseName(name)
	for i, s := range inputChannelNames {
		if s == n {
			return InputChannel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown input channel %q", name)
}

// ParseOutputChannel resolves a routing output channel by name.
func ParseOutputChannel(name string) (OutputChannel, error) {
	n := normaliseName(name)
	for i, s := range outputChannelNames {
		if s == n {
			return OutputChannel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown output channel %q", name)
}

// Step is one entry of a transition table.
type Step struct {
	RouteVolume uint8         // 0-100
	WaitTime    time.Duration // dwell before the next step may fire
}

// Routing marks the matrix cells whose volume is driven by the ducker.
type Routing [InputChannelCount][OutputChannelCount]bool

// Set marks or clears a single cell.
func (r *Routing) Set(in InputChannel, out OutputChannel, on bool) {
	r[in][out] = on
}

// GateParams configures the simulated noise gate.
type GateParams struct {
	ThresholdDB float64
	Attack      time.Duration
	Release     time.Duration
}

// Config is a loaded ducking profile. It is treated as immutable once handed
// to the engine; a reload replaces it wholesale.
type Config struct {
	Enabled       bool
	InputSources  [InputCount]bool
	OutputRouting Routing
	AttackTime    time.Duration
	ReleaseTime   time.Duration
	DuckSteps     []Step
	UnduckSteps   []Step
	Gate          GateParams
}

// Active reports whether at least one input source participates.
func (c *Config) Active() bool {
	for _, on := range c.InputSources {
		if on {
			return true
		}
	}
	return false
}

// HasTransitions reports whether both transition tables are usable.
func (c *Config) HasTransitions() bool {
	return len(c.DuckSteps) > 0 && len(c.UnduckSteps) > 0
}

// Clone returns a deep copy so callers can keep mutating their own value.
func (c Config) Clone() Config {
	c.DuckSteps = append([]Step(nil), c.DuckSteps...)
	c.UnduckSteps = append([]Step(nil), c.UnduckSteps...)
	return c
}
