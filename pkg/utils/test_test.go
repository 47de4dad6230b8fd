// SPDX-License-Identifier: MIT
package utils

import (
	"errors"
	"math"
	"testing"
)

const (
	testSize       = 1024
	testSampleRate = 44100
	testFrequency  = 440.0 // A4 note
)

func TestMockTransport(t *testing.T) {
	tests := []struct {
		name      string
		inputData []any
	}{
		{"Empty Data", nil},
		{"Single Value", []any{0.5}},
		{"Mixed Values", []any{"idle", 80, []float64{0.1, 0.2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt := &MockTransport{}
			for _, d := range tt.inputData {
				if err := mt.Send(d); err != nil {
					t.Errorf("MockTransport.Send() error = %v", err)
				}
			}
			if mt.Count() != len(tt.inputData) {
				t.Errorf("Count() = %d, want %d", mt.Count(), len(tt.inputData))
			}
			if got := mt.Sent(); len(got) != len(tt.inputData) {
				t.Errorf("Sent() length = %d, want %d", len(got), len(tt.inputData))
			}
			if mt.Closed() {
				t.Error("Closed() = true before Close")
			}
			if err := mt.Close(); err != nil || !mt.Closed() {
				t.Errorf("Close() = %v, Closed() = %v", err, mt.Closed())
			}
		})
	}

	t.Run("Error", func(t *testing.T) {
		errSend := errors.New("send failed")
		mt := &MockTransport{Err: errSend}
		if err := mt.Send(1); !errors.Is(err, errSend) {
			t.Errorf("Send() = %v, want %v", err, errSend)
		}
		if mt.Count() != 1 {
			t.Errorf("failed Send not recorded")
		}
	})
}

func TestGenerateSineWave(t *testing.T) {
	wave := GenerateSineWave(testSize, testSampleRate, testFrequency, 0.5)
	if len(wave) != testSize {
		t.Fatalf("len = %d, want %d", len(wave), testSize)
	}
	if wave[0] != 0 {
		t.Errorf("first sample = %f, want 0", wave[0])
	}
	var peak float64
	for _, v := range wave {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	if peak > 0.5 || peak < 0.49 {
		t.Errorf("peak = %f, want ~0.5", peak)
	}
}

func TestGenerateBurst(t *testing.T) {
	tests := []struct {
		name          string
		onset, length int
		wantNonZero   [2]int // first and last index that may be non-zero
	}{
		{"Middle", 100, 200, [2]int{101, 299}},
		{"Clipped at end", testSize - 50, 200, [2]int{testSize - 49, testSize - 1}},
		{"Negative onset", -10, 20, [2]int{1, 19}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := GenerateBurst(testSize, tt.onset, tt.length, testSampleRate, testFrequency, 1)
			if len(b) != testSize {
				t.Fatalf("len = %d", len(b))
			}
			for i, v := range b {
				inside := i >= tt.wantNonZero[0] && i <= tt.wantNonZero[1]
				if !inside && v != 0 {
					t.Fatalf("sample %d = %f outside burst", i, v)
				}
			}
			if b[tt.wantNonZero[0]] == 0 {
				t.Errorf("burst did not start at %d", tt.wantNonZero[0])
			}
		})
	}
}

func TestLevelScript(t *testing.T) {
	s := NewLevelScript(-60, -10, -5)
	want := []float64{-60, -10, -5, -5, -5}
	for i, w := range want {
		got, err := s.Level()
		if err != nil || got != w {
			t.Errorf("Level() #%d = %.1f, %v; want %.1f", i, got, err, w)
		}
	}
	if s.Calls() != len(want) {
		t.Errorf("Calls() = %d, want %d", s.Calls(), len(want))
	}

	errRead := errors.New("read failed")
	s.Fail(errRead)
	if _, err := s.Level(); !errors.Is(err, errRead) {
		t.Errorf("Level() after Fail = %v", err)
	}
	s.Fail(nil)
	if got, _ := s.Level(); got != -5 {
		t.Errorf("Level() after clearing = %.1f, want -5", got)
	}

	if got, _ := NewLevelScript().Level(); !math.IsInf(got, -1) {
		t.Errorf("empty script level = %f, want -Inf", got)
	}
}

func TestRepeat(t *testing.T) {
	r := Repeat(-20, 3)
	if len(r) != 3 || r[0] != -20 || r[2] != -20 {
		t.Errorf("Repeat = %v", r)
	}
	if len(Repeat(0, 0)) != 0 {
		t.Error("Repeat(0) not empty")
	}
}

func BenchmarkGenerateSineWave(b *testing.B) {
	for b.Loop() {
		GenerateSineWave(testSize, testSampleRate, testFrequency, 1)
	}
}
