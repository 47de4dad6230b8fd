// SPDX-License-Identifier: MIT
/*
Package audio turns real audio into the microphone level the ducker polls.

Meter captures a PortAudio input stream and publishes the RMS level of each
buffer in dBFS. FileSource replays a WAV file one tick window at a time so a
recording can drive the ducker offline. Both report levels clamped to the
ducker's floor.
*/
package audio

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"ducker/internal/ducking"
)

// DBFS returns the RMS level of samples in dBFS, where a full-scale sine
// sits at about -3 dB. Silence, empty input and NaN samples read as the floor.
func DBFS(samples []float64) float64 {
	if len(samples) == 0 {
		return ducking.FloorDB
	}
	rms := math.Sqrt(floats.Dot(samples, samples) / float64(len(samples)))
	if !(rms > 0) {
		return ducking.FloorDB
	}
	return math.Max(20*math.Log10(rms), ducking.FloorDB)
}

// fullScale is the magnitude of the largest sample at the given bit depth.
func fullScale(bitDepth int) float64 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	return float64(int64(1) << (bitDepth - 1))
}
