// SPDX-License-Identifier: MIT
package ducking

import (
	"fmt"
	"time"
)

// Phase is the ducker's position between the unducked and ducked states.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseEnteringDuck
	PhaseDucked
	PhaseEnteringUnduck
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseEnteringDuck:
		return "entering_duck"
	case PhaseDucked:
		return "ducked"
	case PhaseEnteringUnduck:
		return "entering_unduck"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText lets Phase appear by name in JSON status messages.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name written by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	for q := PhaseIdle; q <= PhaseEnteringUnduck; q++ {
		if q.String() == string(text) {
			*p = q
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Transition walks the duck and unduck tables one step at a time.
//
// Each direction has a cursor into its table and an elapsed-time accumulator.
// The first step of a direction waits the attack (duck) or release (unduck)
// time, every later step waits the WaitTime of the step before it. A cursor
// survives a reversal until the other direction emits, so a short pause in
// the request resumes where it left off instead of restarting the fade.
type Transition struct {
	phase Phase

	duckIndex   int
	unduckIndex int

	duckElapsed   time.Duration
	unduckElapsed time.Duration
}

// Reset returns to Idle with zeroed cursors and accumulators.
func (t *Transition) Reset() {
	*t = Transition{}
}

// Phase returns the current phase.
func (t *Transition) Phase() Phase {
	return t.phase
}

// Advance evaluates one tick. It returns the volume to push to the routing
// matrix and whether a step fired; at most one step fires per call. Both
// tables in cfg must be non-empty.
func (t *Transition) Advance(requesting bool, tick time.Duration, cfg *Config) (uint8, bool) {
	if requesting {
		if t.phase == PhaseIdle || t.phase == PhaseEnteringUnduck {
			t.beginDuck(cfg)
		}
		return t.stepDuck(tick, cfg)
	}

	if t.phase == PhaseEnteringDuck || t.phase == PhaseDucked {
		t.beginUnduck(cfg)
	}
	return t.stepUnduck(tick, cfg)
}

func (t *Transition) beginDuck(cfg *Config) {
	t.phase = PhaseEnteringDuck
	t.duckElapsed = 0
	t.unduckElapsed = 0
	if t.duckIndex >= len(cfg.DuckSteps) {
		t.phase = PhaseDucked
	}
}

func (t *Transition) beginUnduck(cfg *Config) {
	t.phase = PhaseEnteringUnduck
	t.unduckElapsed = 0
	t.duckElapsed = 0
	if t.unduckIndex >= len(cfg.UnduckSteps) {
		t.phase = PhaseIdle
	}
}

func (t *Transition) stepDuck(tick time.Duration, cfg *Config) (uint8, bool) {
	if t.phase != PhaseEnteringDuck {
		return 0, false
	}

	wait := cfg.AttackTime
	if t.duckIndex > 0 {
		wait = cfg.DuckSteps[t.duckIndex-1].WaitTime
	}
	if !accumulate(&t.duckElapsed, tick, wait) {
		return 0, false
	}

	volume := cfg.DuckSteps[t.duckIndex].RouteVolume
	t.duckIndex++
	t.duckElapsed = 0
	t.unduckIndex = 0
	t.unduckElapsed = 0

	if t.duckIndex >= len(cfg.DuckSteps) {
		t.phase = PhaseDucked
	}
	return volume, true
}

func (t *Transition) stepUnduck(tick time.Duration, cfg *Config) (uint8, bool) {
	if t.phase != PhaseEnteringUnduck {
		return 0, false
	}

	wait := cfg.ReleaseTime
	if t.unduckIndex > 0 {
		wait = cfg.UnduckSteps[t.unduckIndex-1].WaitTime
	}
	if !accumulate(&t.unduckElapsed, tick, wait) {
		return 0, false
	}

	volume := cfg.UnduckSteps[t.unduckIndex].RouteVolume
	t.unduckIndex++
	t.unduckElapsed = 0
	t.duckIndex = 0
	t.duckElapsed = 0

	if t.unduckIndex >= len(cfg.UnduckSteps) {
		t.phase = PhaseIdle
	}
	return volume, true
}

// accumulate adds tick to elapsed and reports whether wait has been reached.
func accumulate(elapsed *time.Duration, tick, wait time.Duration) bool {
	*elapsed += tick
	return *elapsed >= wait
}
