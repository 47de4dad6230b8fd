// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"sync"
)

// MockTransport implements the Transport interface for testing.
type MockTransport struct {
	mu     sync.Mutex
	sent   []any
	closed bool

	// Err is returned from Send and Close when set.
	Err error
	// Block, when non-nil, holds every Send until it is closed.
	Block chan struct{}
}

// Send stores the data for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	if m.Block != nil {
		<-m.Block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	return m.Err
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.Err
}

// Sent returns a copy of everything passed to Send.
func (m *MockTransport) Sent() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.sent))
	copy(out, m.sent)
	return out
}

// Count returns how many messages were sent.
func (m *MockTransport) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GenerateSineWave returns size mono samples of a sine at frequency with the
// given peak amplitude (1.0 is full scale).
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * amplitude)
	}
	return buffer
}

// GenerateBurst returns size samples of silence with a sine burst of length
// samples starting at onset, like a single spoken word into a mic.
func GenerateBurst(size, onset, length int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	if onset < 0 {
		onset = 0
	}
	end := min(onset+length, size)
	for i := onset; i < end; i++ {
		t := float64(i-onset) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * amplitude)
	}
	return buffer
}

// LevelScript replays a fixed sequence of levels, one per call, and then
// repeats the last one. It satisfies the device level source interface.
type LevelScript struct {
	mu     sync.Mutex
	levels []float64
	pos    int
	err    error
}

// NewLevelScript returns a script replaying levels in order.
func NewLevelScript(levels ...float64) *LevelScript {
	return &LevelScript{levels: levels}
}

// Level returns the next level in the script.
func (s *LevelScript) Level() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	if len(s.levels) == 0 {
		return math.Inf(-1), nil
	}
	db := s.levels[min(s.pos, len(s.levels)-1)]
	s.pos++
	return db, nil
}

// Fail makes every following Level call return err. A nil err clears it.
func (s *LevelScript) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Calls returns how many levels have been read.
func (s *LevelScript) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Repeat returns n copies of db, for building scripts.
func Repeat(db float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = db
	}
	return out
}
