// SPDX-License-Identifier: MIT
package ducking

import "time"

// NoiseGate simulates a hardware noise gate on a stream of level readings.
// It is sampled once per tick rather than per audio sample, so attack and
// release are expressed as accumulated tick time instead of coefficients.
// The output is a smoothed, hysteretic dB estimate; the ducker compares that
// against the threshold, never the raw reading.
type NoiseGate struct {
	attackElapsed  time.Duration
	releaseElapsed time.Duration
	lastOutputDB   float64
	wasGated       bool
}

// NewNoiseGate returns a closed gate resting at the floor.
func NewNoiseGate() *NoiseGate {
	g := &NoiseGate{}
	g.Reset()
	return g
}

// Reset closes the gate and clears the envelope memory.
func (g *NoiseGate) Reset() {
	g.attackElapsed = 0
	g.releaseElapsed = 0
	g.lastOutputDB = FloorDB
	g.wasGated = true
}

// Evaluate feeds one level reading taken tick after the previous one and
// returns the gated level.
func (g *NoiseGate) Evaluate(rawDB float64, tick time.Duration, params GateParams, muted bool) float64 {
	if muted {
		return FloorDB
	}

	var outputDB float64
	if rawDB < params.ThresholdDB {
		g.releaseElapsed = min(g.releaseElapsed+tick, params.Release)
		g.attackElapsed = 0

		outputDB = g.lastOutputDB
		if g.releaseElapsed >= params.Release {
			g.wasGated = true
			outputDB = FloorDB
		}
	} else {
		g.attackElapsed = min(g.attackElapsed+tick, params.Attack)
		g.releaseElapsed = 0
		g.wasGated = false

		outputDB = interpolate(rawDB, g.attackElapsed, params.Attack)
	}

	// Partial attack can land just under the threshold. NaN fails both
	// comparisons and is clamped too.
	if !(outputDB >= params.ThresholdDB) || !(outputDB >= FloorDB) {
		outputDB = FloorDB
	}

	g.lastOutputDB = outputDB
	return outputDB
}

// LastOutput returns the most recent gated level.
func (g *NoiseGate) LastOutput() float64 {
	return g.lastOutputDB
}

// Open reports whether the gate has opened since the last completed release.
func (g *NoiseGate) Open() bool {
	return !g.wasGated
}

// interpolate moves linearly from the floor towards rawDB as the attack
// accumulator fills. A zero attack opens the gate immediately.
func interpolate(rawDB float64, elapsed, attack time.Duration) float64 {
	if attack <= 0 {
		return rawDB
	}
	progress := float64(elapsed) / float64(attack)
	return FloorDB + (rawDB-FloorDB)*progress
}

// Triggering reports whether a gated level should request ducking.
func Triggering(gatedDB float64, params GateParams) bool {
	return gatedDB >= params.ThresholdDB
}
