// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ducker/internal/ducking"
	applog "ducker/internal/log"
)

// Level sources the device can meter the mic from.
const (
	SourcePortAudio = "portaudio"
	SourceWAV       = "wav"
	SourceStatic    = "static"
)

// Bounds for the values the engine and meter accept.
const (
	DefaultInputDevice = -1 // system default input device
	MinSampleRate      = 8000
	MaxSampleRate      = 192000
	MaxBufferFrames    = 8192
	MinTickInterval    = time.Millisecond
	MaxTickInterval    = time.Second
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug        bool            `yaml:"debug"`         // Enable debug logging.
	LogLevel     string          `yaml:"log_level"`     // Logging level ("debug", "info", "warn", "error").
	TickInterval time.Duration   `yaml:"tick_interval"` // How often the ducker polls the mic.
	Profile      string          `yaml:"profile"`       // Path to the ducking profile; empty selects the built-in one.
	Device       DeviceConfig    `yaml:"device"`        // Where the mic level comes from.
	Transport    TransportConfig `yaml:"transport"`     // Status publishing.
}

// DeviceConfig selects and shapes the mic level source.
type DeviceConfig struct {
	Source          string        `yaml:"source"`            // "portaudio", "wav" or "static".
	InputDevice     int           `yaml:"input_device"`      // PortAudio device index for the mic (-1 for default).
	SampleRate      float64       `yaml:"sample_rate"`       // Capture sample rate in Hz.
	FramesPerBuffer int           `yaml:"frames_per_buffer"` // Frames per PortAudio buffer.
	LowLatency      bool          `yaml:"low_latency"`       // Request low latency settings from PortAudio.
	WAVPath         string        `yaml:"wav_path"`          // File replayed by the "wav" source.
	Loop            bool          `yaml:"loop"`              // Restart the WAV file when it ends.
	StaticDB        float64       `yaml:"static_db"`         // Level reported by the "static" source.
	ReplyTimeout    time.Duration `yaml:"reply_timeout"`     // Bound on one device request/response round-trip.
	RecordPath      string        `yaml:"record_path"`       // Tee the captured mic into this WAV file.
	VoiceBand       bool          `yaml:"voice_band"`        // Measure only the speech band (100Hz-4kHz).
}

// TransportConfig holds settings related to publishing ducker status.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending status datagrams over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between sending UDP packets.
	WSEnabled        bool          `yaml:"ws_enabled"`         // Serve status over WebSocket.
	WSAddress        string        `yaml:"ws_address"`         // Listen address for the WebSocket server (e.g., ":8080").
	LogEmissions     bool          `yaml:"log_emissions"`      // Log every routing volume change.
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Debug:        false,
		LogLevel:     "info",
		TickInterval: 20 * time.Millisecond,
		Device: DeviceConfig{
			Source:          SourcePortAudio,
			InputDevice:     DefaultInputDevice,
			SampleRate:      48000,
			FramesPerBuffer: 512,
			StaticDB:        ducking.FloorDB,
			ReplyTimeout:    50 * time.Millisecond,
		},
		Transport: TransportConfig{
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond, // ~30Hz.
			WSEnabled:        false,
			WSAddress:        ":8080",
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{"config.yaml", "ducker.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		if path == "" {
			return nil, fmt.Errorf("invalid default configuration: %w", err)
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	if c.TickInterval < MinTickInterval || c.TickInterval > MaxTickInterval {
		return fmt.Errorf("tick_interval %s out of range %s-%s", c.TickInterval, MinTickInterval, MaxTickInterval)
	}

	d := &c.Device
	switch d.Source {
	case SourcePortAudio:
		if d.SampleRate < MinSampleRate || d.SampleRate > MaxSampleRate {
			return fmt.Errorf("device.sample_rate %.0f out of range %d-%d", d.SampleRate, MinSampleRate, MaxSampleRate)
		}
		if d.FramesPerBuffer <= 0 || d.FramesPerBuffer > MaxBufferFrames {
			return fmt.Errorf("device.frames_per_buffer %d out of range 1-%d", d.FramesPerBuffer, MaxBufferFrames)
		}
		if d.InputDevice < DefaultInputDevice {
			return fmt.Errorf("device.input_device %d is invalid (use %d for the default device)", d.InputDevice, DefaultInputDevice)
		}
	case SourceWAV:
		if d.WAVPath == "" {
			return fmt.Errorf("device.wav_path must be set when device.source is %q", SourceWAV)
		}
	case SourceStatic:
	default:
		return fmt.Errorf("device.source %q is not one of %s, %s, %s", d.Source, SourcePortAudio, SourceWAV, SourceStatic)
	}
	if d.RecordPath != "" && d.Source != SourcePortAudio {
		return fmt.Errorf("device.record_path requires device.source %q", SourcePortAudio)
	}
	if d.ReplyTimeout < 0 {
		return fmt.Errorf("device.reply_timeout must not be negative")
	}

	t := &c.Transport
	if t.UDPEnabled {
		if t.UDPTargetAddress == "" {
			return fmt.Errorf("transport.udp_target_address must be set when UDP is enabled")
		}
		if !strings.Contains(t.UDPTargetAddress, ":") {
			return fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", t.UDPTargetAddress)
		}
		if t.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if t.WSEnabled && t.WSAddress == "" {
		return fmt.Errorf("transport.ws_address must be set when WebSocket is enabled")
	}

	return nil
}

// EffectiveLogLevel is LogLevel, raised to debug when Debug is set.
func (c *Config) EffectiveLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}

// applyEnvOverrides replaces file values with ENV_* variables. Values that do
// not parse are ignored with a warning.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.

	envBool("ENV_DEBUG", "debug", &cfg.Debug)
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		applog.Infof("configuration: Overriding log_level from env: %s", val)
	}
	envDuration("ENV_TICK_INTERVAL", "tick_interval", &cfg.TickInterval)
	if val, ok := os.LookupEnv("ENV_PROFILE"); ok {
		cfg.Profile = val
		applog.Infof("configuration: Overriding profile from env: %s", val)
	}

	// ENV_UDP_{...} and ENV_WS_{...}
	// These are specific to the transport layer.

	envBool("ENV_UDP_ENABLED", "transport.udp_enabled", &cfg.Transport.UDPEnabled)
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		applog.Infof("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	envDuration("ENV_UDP_SEND_INTERVAL", "transport.udp_send_interval", &cfg.Transport.UDPSendInterval)
	envBool("ENV_WS_ENABLED", "transport.ws_enabled", &cfg.Transport.WSEnabled)
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		cfg.Transport.WSAddress = val
		applog.Infof("configuration: Overriding transport.ws_address from env: %s", val)
	}
}

func envBool(key, field string, dst *bool) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	bVal, err := strconv.ParseBool(val)
	if err != nil {
		applog.Warnf("configuration: Ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = bVal
	applog.Infof("configuration: Overriding %s from env: %v", field, bVal)
}

func envDuration(key, field string, dst *time.Duration) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		applog.Warnf("configuration: Ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = dur
	applog.Infof("configuration: Overriding %s from env: %s", field, dur)
}
