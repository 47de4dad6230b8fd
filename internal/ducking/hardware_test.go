// SPDX-License-Identifier: MIT
package ducking

import (
	"context"
	"errors"
	"sync"
)

var errFakeHardware = errors.New("fake hardware failure")

type cell struct {
	in  InputChannel
	out OutputChannel
}

// fakeHardware records every call the engine makes. Levels are consumed one
// per read; the last level repeats once the slice is exhausted.
type fakeHardware struct {
	mu sync.Mutex

	levels  []float64
	readErr error
	muted   bool

	failCells   map[cell]bool
	failCommits map[InputChannel]bool

	// When set, ReadLevel signals entered and waits on release.
	entered chan struct{}
	release chan struct{}

	reads   int
	cells   map[cell]uint8
	sets    []cell
	commits []InputChannel
}

func newFakeHardware(levels ...float64) *fakeHardware {
	return &fakeHardware{
		levels:      levels,
		failCells:   make(map[cell]bool),
		failCommits: make(map[InputChannel]bool),
		cells:       make(map[cell]uint8),
	}
}

func (f *fakeHardware) ReadLevel(ctx context.Context, src Input) (float64, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.levels) == 0 {
		return FloorDB, nil
	}
	level := f.levels[0]
	if len(f.levels) > 1 {
		f.levels = f.levels[1:]
	}
	return level, nil
}

func (f *fakeHardware) SourceMuted(Input) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.muted
}

func (f *fakeHardware) SetRoutingCell(in InputChannel, out OutputChannel, volume uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := cell{in, out}
	if f.failCells[c] {
		return errFakeHardware
	}
	f.cells[c] = volume
	f.sets = append(f.sets, c)
	return nil
}

func (f *fakeHardware) CommitChannel(_ context.Context, in InputChannel) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCommits[in] {
		return errFakeHardware
	}
	f.commits = append(f.commits, in)
	return nil
}

func (f *fakeHardware) setLevels(levels ...float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = levels
}

func (f *fakeHardware) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}
