// SPDX-License-Identifier: MIT
package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"ducker/internal/audio"
	"ducker/internal/config"
	"ducker/internal/device"
	"ducker/internal/ducking"
)

// SimulationResult summarises an offline run.
type SimulationResult struct {
	Ticks     int
	Emissions int
	Final     ducking.Status
}

// Simulate runs the engine against a WAV file as fast as possible, one tick
// per window of the file, and writes a line to w for every routing change.
// The engine clock advances one tick interval per window, so the printed
// offsets match what a live run would produce.
func Simulate(ctx context.Context, w io.Writer, cfg *config.Config, wavPath string) (SimulationResult, error) {
	var res SimulationResult

	duck, err := LoadProfile(cfg.Profile)
	if err != nil {
		return res, err
	}
	src, err := audio.OpenFile(wavPath, cfg.TickInterval, false)
	if err != nil {
		return res, err
	}
	if cfg.Device.VoiceBand {
		if err := src.UseVoiceBand(audio.VoiceLowHz, audio.VoiceHighHz); err != nil {
			return res, err
		}
	}

	dev, err := device.New(DeviceName, src, cfg.Device.ReplyTimeout)
	if err != nil {
		return res, err
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = dev.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	engine, err := ducking.NewEngine(dev, cfg.TickInterval)
	if err != nil {
		return res, err
	}

	var offset time.Duration
	start := time.Unix(0, 0).UTC()
	engine.SetClock(func() time.Time { return start.Add(offset) })
	engine.SetObserver(ducking.ObserverFunc(func(s ducking.Status) {
		if !s.Emitted {
			return
		}
		res.Emissions++
		reasons := "none"
		if len(s.Reasons) > 0 {
			reasons = strings.Join(s.Reasons, ",")
		}
		fmt.Fprintf(w, "%10s  %-14s volume %3d  gated %6.1f dB  reasons %s\n",
			s.Time.Sub(start), s.Phase, s.Volume, s.GatedDB, reasons)
	}))
	engine.Load(duck)

	fmt.Fprintf(w, "Simulating %s (%s, %d ticks of %s)\n", wavPath, src.Duration(), src.Windows(), cfg.TickInterval)
	for i := range src.Windows() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		offset = time.Duration(i+1) * cfg.TickInterval
		engine.OnTick(ctx)
		res.Ticks++
	}

	res.Final = engine.Snapshot()
	fmt.Fprintf(w, "Done: %d ticks, %d routing changes, ending %s at volume %d\n",
		res.Ticks, res.Emissions, res.Final.Phase, res.Final.Volume)
	return res, nil
}
