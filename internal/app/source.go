// SPDX-License-Identifier: MIT
package app

import (
	"fmt"

	"ducker/internal/audio"
	"ducker/internal/config"
	"ducker/internal/device"
	"ducker/internal/ducking"
	applog "ducker/internal/log"
	"ducker/internal/profile"
)

// LoadProfile loads the ducking profile at path, or the built-in profile
// when path is empty.
func LoadProfile(path string) (ducking.Config, error) {
	if path == "" {
		applog.Infof("Profile: Using built-in profile")
		return profile.Default(), nil
	}
	cfg, err := profile.Load(path)
	if err != nil {
		return ducking.Config{}, err
	}
	applog.Infof("Profile: Loaded %s", path)
	return cfg, nil
}

// OpenSource creates the mic level source selected by cfg.Device. The
// returned function releases it and must be called once the device stops.
func OpenSource(cfg *config.Config) (device.LevelSource, func() error, error) {
	d := cfg.Device
	switch d.Source {
	case config.SourceStatic:
		applog.Infof("Source: Static level %.1f dB", d.StaticDB)
		return device.NewStaticSource(d.StaticDB), func() error { return nil }, nil

	case config.SourceWAV:
		src, err := audio.OpenFile(d.WAVPath, cfg.TickInterval, d.Loop)
		if err != nil {
			return nil, nil, fmt.Errorf("open WAV source: %w", err)
		}
		if d.VoiceBand {
			if err := src.UseVoiceBand(audio.VoiceLowHz, audio.VoiceHighHz); err != nil {
				return nil, nil, fmt.Errorf("open WAV source: %w", err)
			}
		}
		applog.Infof("Source: Replaying %s (%s, loop: %v)", d.WAVPath, src.Duration(), d.Loop)
		return src, func() error { return nil }, nil

	case config.SourcePortAudio:
		return openMeter(d)
	}
	return nil, nil, fmt.Errorf("unknown level source %q", d.Source)
}

func openMeter(d config.DeviceConfig) (device.LevelSource, func() error, error) {
	if err := audio.Initialize(); err != nil {
		return nil, nil, fmt.Errorf("initialize PortAudio: %w", err)
	}

	meter, err := audio.NewMeter(audio.MeterConfig{
		DeviceID:        d.InputDevice,
		SampleRate:      d.SampleRate,
		FramesPerBuffer: d.FramesPerBuffer,
		LowLatency:      d.LowLatency,
		VoiceBand:       d.VoiceBand,
	})
	if err != nil {
		_ = audio.Terminate()
		return nil, nil, err
	}
	if err := meter.Start(); err != nil {
		_ = audio.Terminate()
		return nil, nil, err
	}

	if d.RecordPath != "" {
		if err := meter.StartRecording(d.RecordPath); err != nil {
			_ = meter.Close()
			_ = audio.Terminate()
			return nil, nil, err
		}
	}

	closeFn := func() error {
		var firstErr error
		if d.RecordPath != "" {
			if err := meter.StopRecording(); err != nil {
				firstErr = err
			} else {
				applog.Infof("Source: Recording saved to %s", d.RecordPath)
			}
		}
		if err := meter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := audio.Terminate(); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}
	return meter, closeFn, nil
}
