// SPDX-License-Identifier: MIT
/*
Package device simulates the USB mixer the ducker drives.

The real mixer is reached through a command channel: every request carries
its own one-shot reply channel and a single goroutine talks to the hardware.
Device keeps that shape so the ducker sees the same suspension points (level
reads and routing commits) and the same failure modes (no reply, gone).
*/
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ducker/internal/ducking"
	applog "ducker/internal/log"
)

var (
	// ErrDisconnected is returned once the command loop has stopped.
	ErrDisconnected = errors.New("device: disconnected")
	// ErrNoReply is returned when the command loop did not answer in time.
	ErrNoReply = errors.New("device: no reply")
	// ErrUnknownChannel is returned for inputs or routing cells the device lacks.
	ErrUnknownChannel = errors.New("device: unknown channel")
)

// DefaultReplyTimeout bounds a single request/response round-trip.
const DefaultReplyTimeout = 50 * time.Millisecond

// MaxVolume is the highest routing volume the device accepts.
const MaxVolume = 100

// LevelSource produces the microphone level the device reports.
type LevelSource interface {
	Level() (float64, error)
}

type levelReply struct {
	db  float64
	err error
}

type getMicLevel struct {
	reply chan<- levelReply
}

type applyRouting struct {
	input ducking.InputChannel
	reply chan<- error
}

type matrix [ducking.InputChannelCount][ducking.OutputChannelCount]uint8

// Device implements ducking.Hardware on top of a LevelSource.
type Device struct {
	name         string
	mic          LevelSource
	replyTimeout time.Duration

	commands chan any
	stopped  chan struct{}
	runOnce  sync.Once

	mu        sync.Mutex
	pending   matrix // staged by SetRoutingCell
	committed matrix // what the hardware is playing
	muted     [ducking.InputCount]bool
	commitN   int
}

var _ ducking.Hardware = (*Device)(nil)

// New creates a device reading its microphone level from mic. A zero
// replyTimeout selects DefaultReplyTimeout.
func New(name string, mic LevelSource, replyTimeout time.Duration) (*Device, error) {
	if mic == nil {
		return nil, fmt.Errorf("device %s: level source cannot be nil", name)
	}
	if replyTimeout <= 0 {
		replyTimeout = DefaultReplyTimeout
	}

	d := &Device{
		name:         name,
		mic:          mic,
		replyTimeout: replyTimeout,
		commands:     make(chan any),
		stopped:      make(chan struct{}),
	}
	for in := range d.pending {
		for out := range d.pending[in] {
			d.pending[in][out] = MaxVolume
			d.committed[in][out] = MaxVolume
		}
	}
	return d, nil
}

// Name returns the device name.
func (d *Device) Name() string {
	return d.name
}

// Run serves commands until ctx is cancelled. Requests made after Run
// returns fail with ErrDisconnected. Run may only be called once.
func (d *Device) Run(ctx context.Context) error {
	started := false
	d.runOnce.Do(func() { started = true })
	if !started {
		return fmt.Errorf("device %s: already running", d.name)
	}
	defer close(d.stopped)

	applog.Infof("Device: %s command loop started", d.name)
	for {
		select {
		case <-ctx.Done():
			applog.Infof("Device: %s command loop stopped", d.name)
			return nil
		case cmd := <-d.commands:
			d.handle(cmd)
		}
	}
}

func (d *Device) handle(cmd any) {
	switch c := cmd.(type) {
	case getMicLevel:
		db, err := d.mic.Level()
		c.reply <- levelReply{db: db, err: err}
	case applyRouting:
		d.mu.Lock()
		d.committed[c.input] = d.pending[c.input]
		d.commitN++
		d.mu.Unlock()
		applog.Debugf("Device: %s applied routing for %s", d.name, c.input)
		c.reply <- nil
	default:
		applog.Warnf("Device: %s ignoring unknown command %T", d.name, cmd)
	}
}

// send hands cmd to the command loop and waits for its reply.
func send[T any](ctx context.Context, d *Device, cmd any, reply <-chan T) (T, error) {
	var zero T

	timer := time.NewTimer(d.replyTimeout)
	defer timer.Stop()

	select {
	case d.commands <- cmd:
	case <-d.stopped:
		return zero, ErrDisconnected
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, ErrNoReply
	}

	select {
	case r := <-reply:
		return r, nil
	case <-d.stopped:
		return zero, ErrDisconnected
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, ErrNoReply
	}
}

// ReadLevel asks the device for the current level of src.
func (d *Device) ReadLevel(ctx context.Context, src ducking.Input) (float64, error) {
	if src != ducking.InputMic {
		return 0, fmt.Errorf("%w: %s", ErrUnknownChannel, src)
	}

	// Buffered so a late reply never blocks the command loop.
	reply := make(chan levelReply, 1)
	r, err := send[levelReply](ctx, d, getMicLevel{reply: reply}, reply)
	if err != nil {
		return 0, fmt.Errorf("device %s: read %s level: %w", d.name, src, err)
	}
	if r.err != nil {
		return 0, fmt.Errorf("device %s: read %s level: %w", d.name, src, r.err)
	}
	return r.db, nil
}

// SourceMuted reports whether src is muted on the device.
func (d *Device) SourceMuted(src ducking.Input) bool {
	if src < 0 || src >= ducking.InputCount {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.muted[src]
}

// SetMuted mutes or unmutes src.
func (d *Device) SetMuted(src ducking.Input, muted bool) error {
	if src < 0 || src >= ducking.InputCount {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, src)
	}
	d.mu.Lock()
	d.muted[src] = muted
	d.mu.Unlock()
	applog.Infof("Device: %s %s muted: %v", d.name, src, muted)
	return nil
}

// ToggleMute flips the mute state of src and returns the new state.
func (d *Device) ToggleMute(src ducking.Input) (bool, error) {
	if src < 0 || src >= ducking.InputCount {
		return false, fmt.Errorf("%w: %s", ErrUnknownChannel, src)
	}
	d.mu.Lock()
	d.muted[src] = !d.muted[src]
	muted := d.muted[src]
	d.mu.Unlock()
	applog.Infof("Device: %s %s muted: %v", d.name, src, muted)
	return muted, nil
}

func validCell(in ducking.InputChannel, out ducking.OutputChannel) bool {
	return in >= 0 && in < ducking.InputChannelCount && out >= 0 && out < ducking.OutputChannelCount
}

// SetRoutingCell stages volume for a cell. It takes effect on CommitChannel.
func (d *Device) SetRoutingCell(in ducking.InputChannel, out ducking.OutputChannel, volume uint8) error {
	if !validCell(in, out) {
		return fmt.Errorf("%w: %s -> %s", ErrUnknownChannel, in, out)
	}
	if volume > MaxVolume {
		return fmt.Errorf("device %s: route volume %d out of range 0-%d", d.name, volume, MaxVolume)
	}

	d.mu.Lock()
	d.pending[in][out] = volume
	d.mu.Unlock()
	return nil
}

// CommitChannel pushes the staged row for in to the hardware.
func (d *Device) CommitChannel(ctx context.Context, in ducking.InputChannel) error {
	if in < 0 || in >= ducking.InputChannelCount {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, in)
	}

	reply := make(chan error, 1)
	applyErr, err := send[error](ctx, d, applyRouting{input: in, reply: reply}, reply)
	if err != nil {
		return fmt.Errorf("device %s: apply routing for %s: %w", d.name, in, err)
	}
	return applyErr
}

// Routing returns the staged volume of a cell.
func (d *Device) Routing(in ducking.InputChannel, out ducking.OutputChannel) uint8 {
	if !validCell(in, out) {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending[in][out]
}

// Committed returns the volume the hardware is applying for a cell.
func (d *Device) Committed(in ducking.InputChannel, out ducking.OutputChannel) uint8 {
	if !validCell(in, out) {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.committed[in][out]
}

// Commits returns how many routing commits the hardware has applied.
func (d *Device) Commits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commitN
}
