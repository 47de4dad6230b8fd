// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"ducker/internal/ducking"
	"ducker/pkg/bitint"
)

// Default speech band. Desk thumps and mains hum sit below it, fan hiss
// above it.
const (
	VoiceLowHz  = 100.0
	VoiceHighHz = 4000.0
)

// VoiceBand measures the level of a buffer counting only the energy between
// two frequencies. Buffers are Hann windowed and zero-padded to a power of 2.
// A VoiceBand reuses its buffers and must not be shared between goroutines.
type VoiceBand struct {
	fft     *fourier.FFT
	size    int // FFT length
	frames  int // samples per buffer
	lowBin  int
	highBin int

	window []float64
	winPow float64 // sum of squared window coefficients
	input  []float64
	coeffs []complex128
}

// NewVoiceBand prepares a band meter for buffers of frames samples. highHz
// is capped at the Nyquist frequency.
func NewVoiceBand(frames int, sampleRate, lowHz, highHz float64) (*VoiceBand, error) {
	if frames < 2 {
		return nil, fmt.Errorf("voice band needs at least 2 frames, got %d", frames)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}
	highHz = math.Min(highHz, sampleRate/2)
	if lowHz < 0 || lowHz >= highHz {
		return nil, fmt.Errorf("invalid band %.0f-%.0f Hz at %.0f Hz", lowHz, highHz, sampleRate)
	}

	size := bitint.NextPowerOfTwo(frames)
	binHz := sampleRate / float64(size)

	coeffs := make([]float64, frames)
	for i := range coeffs {
		coeffs[i] = 1
	}
	window.Hann(coeffs)

	var winPow float64
	for _, w := range coeffs {
		winPow += w * w
	}

	return &VoiceBand{
		fft:     fourier.NewFFT(size),
		size:    size,
		frames:  frames,
		lowBin:  int(math.Ceil(lowHz / binHz)),
		highBin: min(int(math.Floor(highHz/binHz)), size/2),
		window:  coeffs,
		winPow:  winPow,
		input:   make([]float64, size),
		coeffs:  make([]complex128, size/2+1),
	}, nil
}

// Frames returns the buffer length the band was built for.
func (v *VoiceBand) Frames() int {
	return v.frames
}

// DBFS returns the in-band RMS level of samples in dBFS. Samples beyond
// Frames are ignored; shorter buffers are zero-padded.
func (v *VoiceBand) DBFS(samples []float64) float64 {
	n := min(len(samples), v.frames)
	if n == 0 {
		return ducking.FloorDB
	}
	for i := range v.size {
		if i < n {
			v.input[i] = samples[i] * v.window[i]
		} else {
			v.input[i] = 0
		}
	}
	v.fft.Coefficients(v.coeffs, v.input)

	// Parseval over the one-sided spectrum: interior bins stand for their
	// negative-frequency twin too.
	var energy float64
	for k := v.lowBin; k <= v.highBin; k++ {
		c := v.coeffs[k]
		p := real(c)*real(c) + imag(c)*imag(c)
		if k != 0 && k != v.size/2 {
			p *= 2
		}
		energy += p
	}

	power := energy / float64(v.size) / v.winPow
	if !(power > 0) {
		return ducking.FloorDB
	}
	return math.Max(10*math.Log10(power), ducking.FloorDB)
}
