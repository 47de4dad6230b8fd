// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"
	"time"

	"ducker/internal/ducking"
	"ducker/pkg/utils"
)

const (
	testSampleRate = 8000
	testFrameSize  = 160 // 20ms at 8kHz
	testTick       = 20 * time.Millisecond
)

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestDBFS(t *testing.T) {
	constant := func(n int, v float64) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = v
		}
		return out
	}

	tests := []struct {
		desc    string
		samples []float64
		want    float64
	}{
		{"Empty", nil, ducking.FloorDB},
		{"Silence", make([]float64, 256), ducking.FloorDB},
		{"Full scale DC", constant(256, 1), 0},
		{"Half scale DC", constant(256, -0.5), -6.02},
		{"Full scale sine", toFloat64(utils.GenerateSineWave(testFrameSize, testSampleRate, 400, 1)), -3.01},
		{"Quiet sine", toFloat64(utils.GenerateSineWave(testFrameSize, testSampleRate, 400, 0.01)), -43.01},
		{"Below the floor", constant(256, 1e-6), ducking.FloorDB},
		{"NaN sample", append(constant(255, 0.5), math.NaN()), ducking.FloorDB},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := DBFS(tt.samples); !approx(got, tt.want, 0.01) {
				t.Errorf("DBFS() = %.3f, want %.3f", got, tt.want)
			}
		})
	}
}

func TestDBFSNoAllocations(t *testing.T) {
	samples := toFloat64(utils.GenerateSineWave(1024, testSampleRate, 440, 0.3))
	allocs := testing.AllocsPerRun(100, func() {
		_ = DBFS(samples)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in DBFS, got %.1f", allocs)
	}
}

func TestMeterMeasureNoAllocations(t *testing.T) {
	m := &Meter{samples: make([]float64, testFrameSize)}
	in := utils.GenerateSineWave(testFrameSize, testSampleRate, 400, 0.5)

	allocs := testing.AllocsPerRun(100, func() {
		_ = m.measure(in)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in the meter hot path, got %.1f", allocs)
	}
	if got := m.measure(in); !approx(got, -9.03, 0.01) {
		t.Errorf("measure() = %.3f, want -9.03", got)
	}
}

func TestMeterNotRunning(t *testing.T) {
	m := &Meter{}
	if _, err := m.Level(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Level() err = %v, want ErrNotRunning", err)
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() on idle meter: %v", err)
	}
}

// writeTestWAV records silence followed by a half-scale tone.
func writeTestWAV(t *testing.T, silentFrames, toneFrames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mic.wav")

	r, err := NewRecorder(path, testSampleRate, testFrameSize)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	for range silentFrames {
		if err := r.Write(make([]float32, testFrameSize)); err != nil {
			t.Fatalf("Write silence: %v", err)
		}
	}
	for range toneFrames {
		if err := r.Write(utils.GenerateSineWave(testFrameSize, testSampleRate, 400, 0.5)); err != nil {
			t.Fatalf("Write tone: %v", err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func TestFileSourceLevels(t *testing.T) {
	path := writeTestWAV(t, 3, 2)

	src, err := OpenFile(path, testTick, false)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if src.Windows() != 5 {
		t.Errorf("windows = %d, want 5", src.Windows())
	}
	if src.Duration() != 100*time.Millisecond {
		t.Errorf("duration = %s, want 100ms", src.Duration())
	}

	want := []float64{ducking.FloorDB, ducking.FloorDB, ducking.FloorDB, -9.03, -9.03}
	for i, w := range want {
		got, err := src.Level()
		if err != nil {
			t.Fatalf("window %d: %v", i, err)
		}
		if !approx(got, w, 0.05) {
			t.Errorf("window %d = %.3f dB, want %.3f", i, got, w)
		}
	}

	got, err := src.Level()
	if !errors.Is(err, io.EOF) || got != ducking.FloorDB {
		t.Errorf("past the end: %.2f, %v; want floor, io.EOF", got, err)
	}

	src.Rewind()
	if got, err := src.Level(); err != nil || got != ducking.FloorDB {
		t.Errorf("after rewind: %.2f, %v", got, err)
	}
}

func TestFileSourceLoops(t *testing.T) {
	path := writeTestWAV(t, 0, 2)

	src, err := OpenFile(path, testTick, true)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	for i := range 5 {
		got, err := src.Level()
		if err != nil {
			t.Fatalf("window %d: %v", i, err)
		}
		if !approx(got, -9.03, 0.05) {
			t.Errorf("window %d = %.3f dB, want -9.03", i, got)
		}
	}
}

func TestOpenFileErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeTestWAV(t, 1, 0)

	tests := []struct {
		desc string
		path string
		tick time.Duration
	}{
		{"Missing file", filepath.Join(dir, "missing.wav"), testTick},
		{"Zero tick", path, 0},
		{"Tick below one sample", path, time.Microsecond},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if _, err := OpenFile(tt.path, tt.tick, false); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRecorderClipsSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	r, err := NewRecorder(path, testSampleRate, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Write([]float32{2, -2, 0.5, 0}); err != nil {
		t.Fatal(err)
	}
	want := []int{32767, -32767, 16384, 0}
	for i, w := range want {
		if r.sampleBuf.Data[i] != w {
			t.Errorf("sample %d = %d, want %d", i, r.sampleBuf.Data[i], w)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := NewRecorder(path, 0, 4); err == nil {
		t.Error("zero sample rate: expected error")
	}
}

func BenchmarkDBFS(b *testing.B) {
	samples := toFloat64(utils.GenerateSineWave(1024, testSampleRate, 440, 0.3))
	for b.Loop() {
		_ = DBFS(samples)
	}
}
