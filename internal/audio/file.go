// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"

	"ducker/internal/ducking"
)

// FileSource replays a WAV file as a sequence of levels, one per tick
// window. Multi-channel files are measured on their first channel.
type FileSource struct {
	mu sync.Mutex

	path       string
	sampleRate int
	window     int // samples per tick
	samples    []float64
	pos        int
	loop       bool
	band       *VoiceBand
}

// OpenFile decodes path and splits it into windows of length tick.
func OpenFile(path string, tick time.Duration, loop bool) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, err := decodeWAV(f, tick)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	src.path = path
	src.loop = loop
	return src, nil
}

func decodeWAV(r io.ReadSeeker, tick time.Duration) (*FileSource, error) {
	if tick <= 0 {
		return nil, fmt.Errorf("tick must be positive, got %s", tick)
	}

	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode PCM: %w", err)
	}

	channels := max(buf.Format.NumChannels, 1)
	scale := fullScale(int(dec.BitDepth))
	samples := make([]float64, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, float64(buf.Data[i])/scale)
	}

	sampleRate := buf.Format.SampleRate
	window := int(float64(sampleRate) * tick.Seconds())
	if window <= 0 {
		return nil, fmt.Errorf("tick %s is shorter than one sample at %d Hz", tick, sampleRate)
	}

	return &FileSource{
		sampleRate: sampleRate,
		window:     window,
		samples:    samples,
	}, nil
}

// Level returns the level of the next window. Once the file is exhausted it
// returns the floor and io.EOF, unless the source loops.
func (s *FileSource) Level() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.samples) {
		if !s.loop || len(s.samples) == 0 {
			return ducking.FloorDB, io.EOF
		}
		s.pos = 0
	}
	end := min(s.pos+s.window, len(s.samples))
	var db float64
	if s.band != nil {
		db = s.band.DBFS(s.samples[s.pos:end])
	} else {
		db = DBFS(s.samples[s.pos:end])
	}
	s.pos = end
	return db, nil
}

// UseVoiceBand makes Level count only the energy between lowHz and highHz.
func (s *FileSource) UseVoiceBand(lowHz, highHz float64) error {
	band, err := NewVoiceBand(s.window, float64(s.sampleRate), lowHz, highHz)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.band = band
	s.mu.Unlock()
	return nil
}

// Windows returns how many tick windows the file holds.
func (s *FileSource) Windows() int {
	return (len(s.samples) + s.window - 1) / s.window
}

// Duration returns the playing time of the file.
func (s *FileSource) Duration() time.Duration {
	if s.sampleRate == 0 {
		return 0
	}
	return time.Duration(len(s.samples)) * time.Second / time.Duration(s.sampleRate)
}

// Rewind restarts playback from the beginning.
func (s *FileSource) Rewind() {
	s.mu.Lock()
	s.pos = 0
	s.mu.Unlock()
}
