// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"ducker/internal/ducking"
	applog "ducker/internal/log"
)

// ErrNotRunning is returned by Meter.Level before Start or after Stop.
var ErrNotRunning = errors.New("audio: meter not running")

// MeterConfig selects the capture device and stream shape.
type MeterConfig struct {
	DeviceID        int
	SampleRate      float64
	FramesPerBuffer int
	LowLatency      bool
	VoiceBand       bool // measure only VoiceLowHz-VoiceHighHz
}

// Meter reports the level of a live PortAudio input stream.
type Meter struct {
	config MeterConfig

	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream

	// Pre-allocated so the stream callback never allocates.
	samples []float64
	band    *VoiceBand // nil measures the full band

	running atomic.Bool
	level   atomic.Uint64 // math.Float64bits of the last buffer's dBFS

	recMu    sync.Mutex
	recorder *Recorder
}

// NewMeter resolves the input device. PortAudio must be initialized.
func NewMeter(config MeterConfig) (*Meter, error) {
	if config.FramesPerBuffer <= 0 {
		return nil, fmt.Errorf("frames per buffer must be positive, got %d", config.FramesPerBuffer)
	}
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %.0f", config.SampleRate)
	}

	inputDevice, err := InputDevice(config.DeviceID)
	if err != nil {
		return nil, err
	}

	m := &Meter{
		config:      config,
		inputDevice: inputDevice,
		samples:     make([]float64, config.FramesPerBuffer),
	}
	if config.VoiceBand {
		m.band, err = NewVoiceBand(config.FramesPerBuffer, config.SampleRate, VoiceLowHz, VoiceHighHz)
		if err != nil {
			return nil, err
		}
	}
	if config.LowLatency {
		m.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		m.inputLatency = inputDevice.DefaultHighInputLatency
	}
	m.level.Store(math.Float64bits(ducking.FloorDB))
	return m, nil
}

// Start opens and starts the mono input stream.
func (m *Meter) Start() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   m.inputDevice,
			Latency:  m.inputLatency,
		},
		FramesPerBuffer: m.config.FramesPerBuffer,
		SampleRate:      m.config.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, m.processInputStream)
	if err != nil {
		return fmt.Errorf("failed to open input stream on %s: %w", m.inputDevice.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start input stream on %s: %w", m.inputDevice.Name, err)
	}
	m.inputStream = stream
	m.running.Store(true)

	applog.Infof("Meter: Capturing %s at %.0f Hz, %d frames per buffer (latency %s)",
		m.inputDevice.Name, m.config.SampleRate, m.config.FramesPerBuffer, m.inputLatency)
	return nil
}

// Stop stops and closes the input stream. It is a no-op when not running.
func (m *Meter) Stop() error {
	if m.inputStream == nil {
		return nil
	}
	m.running.Store(false)

	if err := m.inputStream.Stop(); err != nil {
		return err
	}
	if err := m.inputStream.Close(); err != nil {
		return err
	}
	m.inputStream = nil
	return nil
}

// Close stops any recording, then the stream.
func (m *Meter) Close() error {
	if err := m.StopRecording(); err != nil {
		return err
	}
	return m.Stop()
}

// Level returns the level of the most recent buffer.
func (m *Meter) Level() (float64, error) {
	if !m.running.Load() {
		return ducking.FloorDB, ErrNotRunning
	}
	return math.Float64frombits(m.level.Load()), nil
}

// processInputStream is the PortAudio callback. It uses pre-allocated
// buffers only.
func (m *Meter) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	m.level.Store(math.Float64bits(m.measure(in)))

	m.recMu.Lock()
	if m.recorder != nil {
		if err := m.recorder.Write(in); err != nil {
			applog.Errorf("Meter: Error writing to WAV file: %v", err)
		}
	}
	m.recMu.Unlock()
}

func (m *Meter) measure(in []float32) float64 {
	n := min(len(in), len(m.samples))
	for i := range n {
		m.samples[i] = float64(in[i])
	}
	if m.band != nil {
		return m.band.DBFS(m.samples[:n])
	}
	return DBFS(m.samples[:n])
}

// StartRecording tees the captured stream into a WAV file.
func (m *Meter) StartRecording(path string) error {
	m.recMu.Lock()
	defer m.recMu.Unlock()

	if m.recorder != nil {
		return fmt.Errorf("already recording")
	}
	r, err := NewRecorder(path, int(m.config.SampleRate), m.config.FramesPerBuffer)
	if err != nil {
		return err
	}
	m.recorder = r
	applog.Infof("Meter: Recording to %s", path)
	return nil
}

// StopRecording finalises the WAV file, if any.
func (m *Meter) StopRecording() error {
	m.recMu.Lock()
	r := m.recorder
	m.recorder = nil
	m.recMu.Unlock()

	if r == nil {
		return nil
	}
	return r.Close()
}
