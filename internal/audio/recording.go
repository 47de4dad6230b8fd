// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// RecordBitDepth is the sample size of recorded WAV files.
const RecordBitDepth = 16

// Recorder writes mono float samples to a 16-bit PCM WAV file.
type Recorder struct {
	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *audio.IntBuffer // reused across writes
	scale      float64
}

// NewRecorder creates path and prepares a buffer of framesPerBuffer samples.
func NewRecorder(path string, sampleRate, framesPerBuffer int) (*Recorder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		outputFile: file,
		wavEncoder: wav.NewEncoder(file, sampleRate, RecordBitDepth, 1, 1),
		sampleBuf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			Data:           make([]int, 0, framesPerBuffer),
			SourceBitDepth: RecordBitDepth,
		},
		scale: fullScale(RecordBitDepth) - 1,
	}, nil
}

// Write appends samples in the range [-1, 1]; values outside are clipped.
func (r *Recorder) Write(samples []float32) error {
	data := r.sampleBuf.Data[:0]
	for _, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		data = append(data, int(math.Round(v*r.scale)))
	}
	r.sampleBuf.Data = data
	return r.wavEncoder.Write(r.sampleBuf)
}

// Close finalises the WAV header and closes the file.
func (r *Recorder) Close() error {
	if err := r.wavEncoder.Close(); err != nil {
		r.outputFile.Close()
		return err
	}
	return r.outputFile.Close()
}
